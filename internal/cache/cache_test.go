/*
Copyright 2024 Fable Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := newRedisCache([]string{mr.Addr()}, false)
	require.NoError(t, err)
	return c
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	key := "content:QmTestCID"
	setValue := map[string]string{"title": "The Long Road"}
	err := c.Set(ctx, key, setValue, 10*time.Minute)
	assert.NoError(t, err)

	var getValue map[string]string
	err = c.Get(ctx, key, &getValue)
	assert.NoError(t, err)
	assert.Equal(t, setValue, getValue)
}

func TestGetNonExistentKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	// a miss is not an error, the target is simply left empty
	var getValue map[string]string
	err := c.Get(ctx, "content:QmMissing", &getValue)
	assert.NoError(t, err)
	assert.Empty(t, getValue)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	key := "content:QmTestCID"
	err := c.Set(ctx, key, "testValue", 10*time.Minute)
	require.NoError(t, err)

	err = c.Delete(ctx, key)
	assert.NoError(t, err)

	var getValue string
	err = c.Get(ctx, key, &getValue)
	assert.NoError(t, err)
	assert.Empty(t, getValue)

	// deleting a key that is not there is fine
	err = c.Delete(ctx, "content:QmMissing")
	assert.NoError(t, err)
}
