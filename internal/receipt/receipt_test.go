package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
)

func TestRender(t *testing.T) {
	d := donation.Donation{
		ID:           "3f1c",
		UserID:       "u1",
		Amount:       1250.5,
		Source:       donation.SourceReferral,
		ReferralCode: "JANE1A2B",
		Notes:        "For the winter shelter, café fund",
		Status:       donation.StatusCompleted,
		CreatedAt:    time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC),
	}
	u := user.User{ID: "u1", Name: "Zoë Lane", Email: "zoe@example.com"}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, u))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Equal(t, "receipt-3f1c.pdf", Filename(d))
}
