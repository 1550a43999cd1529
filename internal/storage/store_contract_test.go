package storage

import (
	"context"

	"github.com/stretchr/testify/suite"

	id "idverify/pkg/domain"
)

// StoreContractSuite runs the same behaviour against every backend.
type StoreContractSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
}

func (s *StoreContractSuite) SetupTest() {
	s.store = s.newStore()
}

func (s *StoreContractSuite) TestItemLookup() {
	ctx := context.Background()
	sessionID := id.NewBrowserSessionID()

	s.Run("returns stored value", func() {
		s.Require().NoError(s.store.SetItem(ctx, sessionID, "accessCode", "123"))
		v, err := s.store.GetItem(ctx, sessionID, "accessCode")
		s.Require().NoError(err)
		s.Equal("123", v)
	})

	s.Run("returns ErrNotFound for a key never set", func() {
		_, err := s.store.GetItem(ctx, sessionID, "missing")
		s.Require().ErrorIs(err, ErrNotFound)
	})

	s.Run("returns ErrNotFound for an unknown session", func() {
		_, err := s.store.GetItem(ctx, id.NewBrowserSessionID(), "accessCode")
		s.Require().ErrorIs(err, ErrNotFound)
	})
}

func (s *StoreContractSuite) TestLastWriteWins() {
	ctx := context.Background()
	sessionID := id.NewBrowserSessionID()

	s.Require().NoError(s.store.SetItem(ctx, sessionID, "ref", "abc"))
	s.Require().NoError(s.store.SetItem(ctx, sessionID, "ref", "def"))

	v, err := s.store.GetItem(ctx, sessionID, "ref")
	s.Require().NoError(err)
	s.Equal("def", v)
}

func (s *StoreContractSuite) TestSessionsAreIsolated() {
	ctx := context.Background()
	a, b := id.NewBrowserSessionID(), id.NewBrowserSessionID()

	s.Require().NoError(s.store.SetItem(ctx, a, "next", "/courses/1"))
	s.Require().NoError(s.store.SetItem(ctx, a, "ref", "abc"))
	s.Require().NoError(s.store.SetItem(ctx, b, "next", "/courses/2"))

	itemsA, err := s.store.Items(ctx, a)
	s.Require().NoError(err)
	s.Equal(map[string]string{"next": "/courses/1", "ref": "abc"}, itemsA)

	itemsB, err := s.store.Items(ctx, b)
	s.Require().NoError(err)
	s.Equal(map[string]string{"next": "/courses/2"}, itemsB)

	empty, err := s.store.Items(ctx, id.NewBrowserSessionID())
	s.Require().NoError(err)
	s.Empty(empty)
}
