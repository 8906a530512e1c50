package services_test

import (
	"context"
	"regexp"
	"testing"

	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeClaimSource(t *testing.T) {
	ctx := context.Background()
	sourceID := uuid.New()
	claim := `UPDATE "knowledge_sources" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status = $4`

	t.Run("Pending source is claimed", func(t *testing.T) {
		db, mock := newMockGorm(t)
		knowledgeDB := services.NewKnowledgeServiceDB(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(claim)).
			WithArgs(models.KnowledgeProcessing, sqlmock.AnyArg(), sourceID, models.KnowledgePending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		claimed, err := knowledgeDB.ClaimSource(ctx, sourceID)

		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Source claimed elsewhere is not taken", func(t *testing.T) {
		db, mock := newMockGorm(t)
		knowledgeDB := services.NewKnowledgeServiceDB(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(claim)).
			WithArgs(models.KnowledgeProcessing, sqlmock.AnyArg(), sourceID, models.KnowledgePending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		claimed, err := knowledgeDB.ClaimSource(ctx, sourceID)

		require.NoError(t, err)
		assert.False(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
