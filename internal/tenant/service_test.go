// Copyright 2026 The Authzd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/authzd/authzd/internal/cache"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func TestService_Get_ActiveTenant(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, "t1").Return(&Tenant{ID: "t1", Name: "acme", Status: StatusActive}, nil)

	svc := NewService(repo, nil, time.Hour)
	got, err := svc.Get(context.Background(), "t1")

	assert.NoError(t, err)
	assert.Equal(t, "acme", got.Name)
	assert.Equal(t, StatusActive, got.Status)
	repo.AssertExpectations(t)
}

func TestService_Get_NotFound(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, "missing").Return(nil, ErrTenantNotFound)

	svc := NewService(repo, nil, time.Hour)
	_, err := svc.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestService_Get_StorageError(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, "t1").Return(nil, errors.New("connection refused"))

	svc := NewService(repo, nil, time.Hour)
	_, err := svc.Get(context.Background(), "t1")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTenantNotFound)
}

func TestService_Get_CachesPositiveResult(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, "t1").Return(&Tenant{ID: "t1", Name: "acme", Status: StatusActive}, nil).Once()

	c := cache.NewInMemoryCache()
	defer c.Close()
	svc := NewService(repo, c, time.Hour)

	first, err := svc.Get(context.Background(), "t1")
	assert.NoError(t, err)
	second, err := svc.Get(context.Background(), "t1")
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	repo.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestService_Get_CachesNegativeResult(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, "ghost").Return(nil, ErrTenantNotFound).Once()

	c := cache.NewInMemoryCache()
	defer c.Close()
	svc := NewService(repo, c, time.Hour)

	_, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	_, err = svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	repo.AssertNumberOfCalls(t, "GetByID", 1)
}
