package errors

import stderrors "errors"

var (
	ErrUnknownContract     = stderrors.New("host: unknown contract")
	ErrNotInstantiated     = stderrors.New("host: marketplace not instantiated")
	ErrAlreadyInstantiated = stderrors.New("host: marketplace already instantiated")
	ErrInvalidSender       = stderrors.New("host: invalid sender address")
)
