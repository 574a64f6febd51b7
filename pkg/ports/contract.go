package ports

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract checks the behaviour every StateStore must share.
// Adapter tests call it with a fresh store.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	id := "contract-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	t.Run("round trip keeps the workflow", func(t *testing.T) {
		st := domain.NewState(id)
		st.PushMessage("delete patient Jane Roe")
		st.PendingAction = domain.ActionDelete
		st.SelectedRecordID = "p-42"
		st.AwaitingConfirmation = domain.ConfirmDelete
		st.ConfirmationRequired = true
		st.ValidatedFields[domain.FieldPatient] = "Jane Roe"
		st.PendingFields = domain.NewFieldSet(domain.FieldDNI)
		require.NoError(t, store.Save(ctx, id, st))

		got, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, st.RecentMessages, got.RecentMessages)
		assert.Equal(t, domain.ActionDelete, got.PendingAction)
		assert.Equal(t, "p-42", got.SelectedRecordID)
		assert.Equal(t, domain.ConfirmDelete, got.AwaitingConfirmation)
		assert.True(t, got.ConfirmationRequired)
		assert.Equal(t, "Jane Roe", got.ValidatedFields[domain.FieldPatient])
		assert.True(t, got.PendingFields.Has(domain.FieldDNI))
	})

	t.Run("stored copy is isolated", func(t *testing.T) {
		st := domain.NewState(id)
		require.NoError(t, store.Save(ctx, id, st))
		st.ExtractedFields[domain.FieldEmail] = "after@save"

		got, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, got.ExtractedFields, domain.FieldEmail)

		got.ExtractedFields[domain.FieldEmail] = "after@load"
		again, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, again.ExtractedFields, domain.FieldEmail)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Load(ctx, id+"-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, store.Delete(ctx, id+"-missing"))
	})

	t.Run("delete forgets", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, id, domain.NewState(id)))
		require.NoError(t, store.Delete(ctx, id))
		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("list", func(t *testing.T) {
		a, b := id+"-a", id+"-b"
		require.NoError(t, store.Save(ctx, a, domain.NewState(a)))
		require.NoError(t, store.Save(ctx, b, domain.NewState(b)))
		t.Cleanup(func() {
			_ = store.Delete(ctx, a)
			_ = store.Delete(ctx, b)
		})

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Subset(t, ids, []string{a, b})
	})
}
