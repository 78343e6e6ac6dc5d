package emailsvc

import (
	"net/http"
	"net/mail"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/tests"
)

func mockSendgridAPI(t *testing.T, status int, err error) *int {
	calls := new(int)
	origAPI := sendgridAPI
	t.Cleanup(func() { sendgridAPI = origAPI })
	sendgridAPI = func(req rest.Request) (*rest.Response, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return &rest.Response{StatusCode: status, Body: "{}"}, nil
	}
	return calls
}

func newTestMessage() core.EmailMessage {
	return core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
		Subject:     "Payment receipt TXN-1",
		TextContent: "Thank you!",
	}
}

func Test_sendgridService_send(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	tests := []struct {
		name    string
		status  int
		apiErr  error
		wantErr bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "rejected", status: http.StatusBadRequest, wantErr: true},
		{name: "unreachable", apiErr: errors.New("dial tcp: i/o timeout"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := mockSendgridAPI(t, tt.status, tt.apiErr)
			svc := NewSendgridService(conf, logger)

			err := svc.send(newTestMessage())
			assert.Equal(t, 1, *calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_sendgridService_breaker(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Mail.BreakerMaxFailures = 2
	conf.Mail.BreakerTimeout = time.Hour
	logger := testutil.NewLogger(conf)

	calls := mockSendgridAPI(t, 0, errors.New("connection refused"))
	svc := NewSendgridService(conf, logger)

	for i := 0; i < 2; i++ {
		require.Error(t, svc.send(newTestMessage()))
	}
	assert.Equal(t, gobreaker.StateOpen, svc.breaker.State())

	err := svc.send(newTestMessage())
	assert.Equal(t, gobreaker.ErrOpenState, errors.Cause(err))
	assert.Equal(t, 2, *calls, "open breaker must not reach the API")
}

func Test_sendgridService_prepare(t *testing.T) {
	conf := testutil.NewConfig()
	svc := NewSendgridService(conf, testutil.NewLogger(conf))

	msg := newTestMessage()
	msg.HTMLContent = "<p>Thank you!</p>"
	m := svc.prepare(msg)

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "["+conf.AppName+"] Payment receipt TXN-1", m.Personalizations[0].Subject)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "jane@test.cd", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}

func TestNew(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	conf.SendgridAPIKey = "SG.key"
	assert.IsType(t, &consoleService{}, New(conf, logger), "test mode never reaches SendGrid")

	conf.TestMode = false
	assert.IsType(t, &sendgridService{}, New(conf, logger))

	conf.SendgridAPIKey = ""
	assert.IsType(t, &consoleService{}, New(conf, logger))
}
