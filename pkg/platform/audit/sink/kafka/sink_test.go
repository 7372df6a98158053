package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medfayda/internal/platform/kafka/producer"
	id "medfayda/pkg/domain"
	audit "medfayda/pkg/platform/audit"
)

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) Produce(ctx context.Context, msg *producer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestSink_Publish(t *testing.T) {
	r := audit.Record{
		ID:               "01JB0000000000000000000000",
		ActorID:          "doctor-1",
		SubjectPatientID: "patient-7",
		Action:           id.ActionExportData,
		Hash:             "h1",
	}

	t.Run("keys by patient and tags headers", func(t *testing.T) {
		p := new(mockProducer)
		p.On("Produce", mock.Anything, mock.MatchedBy(func(msg *producer.Message) bool {
			var decoded audit.Record
			require.NoError(t, json.Unmarshal(msg.Value, &decoded))
			return msg.Topic == DefaultTopic &&
				string(msg.Key) == "patient-7" &&
				msg.Headers["action"] == "export_data" &&
				msg.Headers["hash"] == "h1" &&
				decoded.ID == r.ID
		})).Return(nil).Once()

		require.NoError(t, New(p, "").Publish(context.Background(), r))
		p.AssertExpectations(t)
	})

	t.Run("falls back to actor key", func(t *testing.T) {
		p := new(mockProducer)
		p.On("Produce", mock.Anything, mock.MatchedBy(func(msg *producer.Message) bool {
			return msg.Topic == "audit.custom" && string(msg.Key) == "doctor-1"
		})).Return(nil).Once()

		login := r
		login.SubjectPatientID = ""
		require.NoError(t, New(p, "audit.custom").Publish(context.Background(), login))
		p.AssertExpectations(t)
	})

	t.Run("propagates producer errors", func(t *testing.T) {
		p := new(mockProducer)
		p.On("Produce", mock.Anything, mock.Anything).Return(errors.New("broker down"))

		err := New(p, "").Publish(context.Background(), r)
		assert.EqualError(t, err, "broker down")
	})
}
