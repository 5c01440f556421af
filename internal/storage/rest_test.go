package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

func TestRESTStorageInsertSendsRepresentationHeaders(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/conversations", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"c1","channel_type":"whatsapp","channel_identifier":"5511","status":"active","created_at":"2024-05-01T10:00:00.123456+00:00"}]`))
	}))
	defer srv.Close()

	s := NewRESTStorage(srv.URL, "secret", srv.Client(), zap.NewNop())
	conv, err := s.CreateConversation(context.Background(), &models.Conversation{
		ChannelType: models.ChannelWhatsApp, ChannelIdentifier: "5511", Status: models.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, 2024, conv.CreatedAt.Year())
	assert.Equal(t, "whatsapp", got["channel_type"])
	assert.NotContains(t, got, "id")
}

func TestRESTStorageSelectUsesExactMatchFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.instagram", q.Get("channel_type"))
		assert.Equal(t, "eq.ana.silva", q.Get("channel_identifier"))
		assert.Equal(t, "eq.active", q.Get("status"))
		_, _ = w.Write([]byte(`[
			{"id":"c2","channel_type":"instagram","channel_identifier":"ana.silva","status":"active","created_at":"2024-05-01T10:00:05Z"},
			{"id":"c1","channel_type":"instagram","channel_identifier":"ana.silva","status":"active","created_at":"2024-05-01T10:00:00Z"}
		]`))
	}))
	defer srv.Close()

	s := NewRESTStorage(srv.URL, "k", srv.Client(), zap.NewNop())
	convs, err := s.FindConversations(context.Background(), models.ChannelInstagram, "ana.silva", models.StatusActive)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "c1", convs[0].ID)
}

func TestRESTStorageLatestAssignmentEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := NewRESTStorage(srv.URL, "k", srv.Client(), zap.NewNop())
	_, err := s.LatestAssignment(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRESTStorageInsertFailureIsStoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"violates foreign key"}`, http.StatusConflict)
	}))
	defer srv.Close()

	s := NewRESTStorage(srv.URL, "k", srv.Client(), zap.NewNop())
	_, err := s.CreateHandoff(context.Background(), &models.HandoffTicket{ConversationID: "c1", Priority: models.PriorityHigh})
	var storeErr *models.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, TableHandoffQueue, storeErr.Table)
	assert.Contains(t, storeErr.Error(), "409")
}
