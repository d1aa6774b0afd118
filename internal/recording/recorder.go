package recording

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Storage persists fetched recording audio.
type Storage interface {
	Upload(key, contentType string, data []byte) error
}

// Recorder starts dual-channel call recordings through the telephony REST API
// and archives the resulting audio once the provider reports completion.
type Recorder struct {
	client     *twilio.RestClient
	httpClient *http.Client
	storage    Storage

	accountSID  string
	authToken   string
	callbackURL string
}

func New(accountSID, authToken, callbackURL string, storage Storage) *Recorder {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Recorder{
		client:      client,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		storage:     storage,
		accountSID:  accountSID,
		authToken:   authToken,
		callbackURL: callbackURL,
	}
}

// Start asks the telephony provider to record the live call. Recording is
// best effort: a failure never affects the call itself.
func (r *Recorder) Start(callSID string) {
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(r.callbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("dual")

	if _, err := r.client.Api.CreateCallRecording(callSID, params); err != nil {
		log.Printf("[%s] start recording failed: %v", callSID, err)
		return
	}
	log.Printf("[%s] recording started", callSID)
}

// Ingest downloads a completed recording and archives it. The provider hosts
// recordings behind basic auth on the account credentials.
func (r *Recorder) Ingest(ctx context.Context, recordingURL, recordingSID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(r.accountSID, r.authToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download recording: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("recordings/%s_%d.wav", recordingSID, time.Now().Unix())
	if err := r.storage.Upload(key, "audio/wav", data); err != nil {
		return err
	}
	log.Printf("recording archived: %s (%d bytes)", key, len(data))
	return nil
}
