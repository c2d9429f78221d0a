package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	ts := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectID()

	salary := bson.D{
		{Key: "_id", Value: oid},
		{Key: "type", Value: "income"},
		{Key: "description", Value: "Salary"},
		{Key: "amount", Value: 3000.0},
		{Key: "category", Value: "Job"},
		{Key: "date", Value: ts},
		{Key: "createdAt", Value: ts},
		{Key: "updatedAt", Value: ts},
	}

	mt.Run("Create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		created, err := newMongo(mt.Coll).Create(ctx, fixture(models.Income, "Salary", "Job", 3000))
		require.NoError(mt, err)
		assert.Len(mt, created.ID, 24)
		assert.Equal(mt, "Salary", created.Description)
		assert.Equal(mt, ts, created.CreatedAt)
	})

	mt.Run("Get", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.transactions", mtest.FirstBatch, salary))

		got, err := newMongo(mt.Coll).Get(ctx, oid.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, &models.Transaction{
			ID:          oid.Hex(),
			Type:        models.Income,
			Description: "Salary",
			Amount:      3000,
			Category:    "Job",
			Date:        ts,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}, got)
	})

	mt.Run("GetUnknown", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.transactions", mtest.FirstBatch))

		_, err := newMongo(mt.Coll).Get(ctx, primitive.NewObjectID().Hex())
		assert.True(mt, errors.Is(err, models.ErrNotFound))
	})

	mt.Run("GetMalformedID", func(mt *mtest.T) {
		_, err := newMongo(mt.Coll).Get(ctx, "not-an-object-id")
		assert.True(mt, errors.Is(err, models.ErrNotFound))
	})

	mt.Run("List", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.transactions", mtest.FirstBatch, salary))

		all, err := newMongo(mt.Coll).List(ctx, Filter{Type: models.Income})
		require.NoError(mt, err)
		require.Len(mt, all, 1)
		assert.Equal(mt, oid.Hex(), all[0].ID)
	})

	mt.Run("ListEmpty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.transactions", mtest.FirstBatch))

		all, err := newMongo(mt.Coll).List(ctx, Filter{})
		require.NoError(mt, err)
		assert.NotNil(mt, all)
		assert.Empty(mt, all)
	})

	mt.Run("Update", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		changed := fixture(models.Income, "Salary", "Job", 3100)
		changed.ID = oid.Hex()
		updated, err := newMongo(mt.Coll).Update(ctx, changed)
		require.NoError(mt, err)
		assert.Equal(mt, 3100.0, updated.Amount)
		assert.Equal(mt, oid.Hex(), updated.ID)
	})

	mt.Run("UpdateUnknown", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		changed := fixture(models.Income, "Salary", "Job", 3100)
		changed.ID = primitive.NewObjectID().Hex()
		_, err := newMongo(mt.Coll).Update(ctx, changed)
		assert.True(mt, errors.Is(err, models.ErrNotFound))
	})

	mt.Run("Delete", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(mt, newMongo(mt.Coll).Delete(ctx, oid.Hex()))
	})

	mt.Run("DeleteUnknown", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := newMongo(mt.Coll).Delete(ctx, oid.Hex())
		assert.True(mt, errors.Is(err, models.ErrNotFound))
	})

	mt.Run("InsertError", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11000,
			Message: "duplicate key error",
		}))

		_, err := newMongo(mt.Coll).Create(ctx, fixture(models.Expense, "Rent", "Housing", 1200))
		assert.Error(mt, err)
		assert.False(mt, errors.Is(err, models.ErrNotFound))
	})
}
