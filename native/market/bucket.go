package market

import (
	"fmt"
	"strings"
)

// CreateBucket allocates a new bucket under (sender, bucketID) holding
// delivery.
func (e *Engine) CreateBucket(env Env, sender string, delivery Delivery, bucketID string) (*Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(bucketID) == "" {
		return nil, fmt.Errorf("%w: bucket_id must not be empty", ErrInvalidMessage)
	}
	if delivery.Empty() {
		return nil, fmt.Errorf("%w: bucket %s: no assets attached", ErrInvalidBalance, bucketID)
	}
	if _, exists, err := e.state.BucketGet(sender, bucketID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: bucket %s for %s", ErrDuplicate, bucketID, sender)
	}
	bucket := &Bucket{Owner: sender, ID: bucketID}
	if err := mergeChecked(&bucket.Funds, delivery); err != nil {
		return nil, fmt.Errorf("bucket %s: %w", bucketID, err)
	}
	if err := e.state.BucketPut(bucket); err != nil {
		return nil, err
	}
	e.emit(NewBucketCreatedEvent(bucket))
	return &Response{Action: "create_bucket"}, nil
}

// AddToBucket merges delivery into one of the sender's buckets.
func (e *Engine) AddToBucket(env Env, sender string, delivery Delivery, bucketID string) (*Response, error) {
	bucket, err := e.loadBucket(sender, bucketID)
	if err != nil {
		return nil, err
	}
	if delivery.Empty() {
		return nil, fmt.Errorf("%w: bucket %s: no assets attached", ErrInvalidBalance, bucketID)
	}
	if err := mergeChecked(&bucket.Funds, delivery); err != nil {
		return nil, fmt.Errorf("bucket %s: %w", bucketID, err)
	}
	if err := e.state.BucketPut(bucket); err != nil {
		return nil, err
	}
	e.emit(NewBucketFundedEvent(bucket))
	return &Response{Action: "add_to_bucket"}, nil
}

// RemoveBucket refunds a bucket to its owner and erases it.
func (e *Engine) RemoveBucket(env Env, sender, bucketID string) (*Response, error) {
	bucket, err := e.loadBucket(sender, bucketID)
	if err != nil {
		return nil, err
	}
	resp := &Response{Action: "remove_bucket"}
	if err := resp.send(bucket.Owner, bucket.Funds); err != nil {
		return nil, err
	}
	if err := e.state.BucketDelete(bucket.Owner, bucket.ID); err != nil {
		return nil, err
	}
	e.emit(NewBucketRemovedEvent(bucket))
	return resp, nil
}

func (e *Engine) loadBucket(owner, bucketID string) (*Bucket, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bucket, ok, err := e.state.BucketGet(owner, bucketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: bucket %s for %s", ErrNotFound, bucketID, owner)
	}
	return bucket, nil
}

// takeBucket removes the bucket and hands its funds to the caller. It is only
// used while buying a listing; the surrounding transaction restores the
// bucket if a later step fails.
func (e *Engine) takeBucket(owner, bucketID string) (GenericBalance, error) {
	bucket, err := e.loadBucket(owner, bucketID)
	if err != nil {
		return GenericBalance{}, err
	}
	if err := e.state.BucketDelete(owner, bucketID); err != nil {
		return GenericBalance{}, err
	}
	return bucket.Funds, nil
}
