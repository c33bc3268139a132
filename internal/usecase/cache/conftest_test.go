package cache

import (
	"context"
	"time"

	"github.com/kailas-cloud/ragdex/internal/db/memory"
)

type failingStore struct {
	err error
}

func (f *failingStore) Ping(context.Context) error                   { return f.err }
func (f *failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f *failingStore) Set(context.Context, string, []byte) error   { return f.err }
func (f *failingStore) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return f.err
}
func (f *failingStore) GetMulti(context.Context, []string) ([][]byte, error) { return nil, f.err }
func (f *failingStore) Del(context.Context, ...string) error                 { return f.err }
func (f *failingStore) Scan(context.Context, string) ([]string, error)       { return nil, f.err }

type scanFailingStore struct {
	*memory.Store
}

func (s *scanFailingStore) Scan(context.Context, string) ([]string, error) {
	return nil, context.DeadlineExceeded
}
