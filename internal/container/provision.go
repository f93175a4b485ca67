package container

import (
	"context"
	"errors"
)

// provision runs setup against the freshly created container id. A failed
// setup force-removes the container so the name is free for the next attempt.
func provision(ctx context.Context, id string, setup func() error, remove func(context.Context, string) error) error {
	err := setup()
	if err == nil {
		return nil
	}
	if rmErr := remove(context.WithoutCancel(ctx), id); rmErr != nil {
		return errors.Join(err, rmErr)
	}
	return err
}
