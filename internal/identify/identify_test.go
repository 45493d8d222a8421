package identify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lepinet/internal/model"
)

func predictServer(t *testing.T, status int, reply string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "jpeg bytes", string(data))
			assert.Equal(t, "wing.jpg", header.Filename)
			assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		}

		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/predict")
}

func TestPredict(t *testing.T) {
	c := predictServer(t, http.StatusOK, `{"species_name":"Blue Mormon","species_id":"b012","confidence":0.81}`)

	p, err := c.Predict(context.Background(), "wing.jpg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	assert.Equal(t, model.Prediction{SpeciesName: "Blue Mormon", SpeciesID: "b012", Confidence: 0.81}, p)
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "space not found",
			status: http.StatusNotFound,
			reply:  "<html>Sorry, we can't find the page on HuggingFace</html>",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrModelNotFound)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			reply:  "worker crashed",
			check: func(t *testing.T, err error) {
				var se *ServerError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusInternalServerError, se.Status)
				assert.Equal(t, "worker crashed", se.Message)
			},
		},
		{
			name:   "model error field",
			status: http.StatusOK,
			reply:  `{"error":"no butterfly detected"}`,
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "prediction failed: no butterfly detected")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := predictServer(t, tt.status, tt.reply)
			_, err := c.Predict(context.Background(), "wing.jpg", strings.NewReader("jpeg bytes"))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestPredictMock(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	c := NewClient("http://unused.invalid", WithMock(2*time.Second), WithClock(clk))

	done := make(chan model.Prediction, 1)
	go func() {
		p, err := c.Predict(context.Background(), "", strings.NewReader(""))
		assert.NoError(t, err)
		done <- p
	}()

	require.NoError(t, clk.WaitAdvance(2*time.Second, 5*time.Second, 1))
	select {
	case p := <-done:
		assert.Equal(t, MockPrediction, p)
	case <-time.After(5 * time.Second):
		t.Fatal("mock prediction not returned")
	}
}

type fakeUploader struct{ bucket, owner, body string }

func (f *fakeUploader) Upload(_ context.Context, bucket, owner, _ string, body io.Reader) (string, error) {
	data, _ := io.ReadAll(body)
	f.bucket, f.owner, f.body = bucket, owner, string(data)
	return "https://cdn.example/" + bucket + "/" + owner + "/x.jpg", nil
}

type fakePredictor struct{ got string }

func (f *fakePredictor) Predict(_ context.Context, _ string, image io.Reader) (model.Prediction, error) {
	data, _ := io.ReadAll(image)
	f.got = string(data)
	return MockPrediction, nil
}

type fakeInserter struct {
	collection string
	row        any
	err        error
}

func (f *fakeInserter) Insert(_ context.Context, collection string, rows any) error {
	f.collection, f.row = collection, rows
	return f.err
}

func TestIdentifyAndDecide(t *testing.T) {
	up := &fakeUploader{}
	pred := &fakePredictor{}
	ins := &fakeInserter{}
	s := NewService(up, pred, ins, "checklist_photos", nil)

	res, err := s.Identify(context.Background(), "user-42", "wing.jpg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", up.body)
	assert.Equal(t, "jpeg bytes", pred.got, "the model sees the same bytes that were uploaded")
	assert.Equal(t, "checklist_photos", up.bucket)
	assert.Equal(t, "Common Rose", res.SpeciesName)
	assert.Equal(t, "https://cdn.example/checklist_photos/user-42/x.jpg", res.ImageURL)

	action := s.Decide(context.Background(), "user-42", res, true)
	assert.Equal(t, model.UserActionAccepted, action)
	assert.Equal(t, model.CollectionAILogs, ins.collection)
	assert.Equal(t, model.AILogRow{
		UserID:              "user-42",
		ImageURL:            res.ImageURL,
		PredictedID:         "b006",
		PredictedConfidence: 0.94,
		UserAction:          model.UserActionAccepted,
	}, ins.row)
}

func TestDecideSwallowsLoggingFailure(t *testing.T) {
	ins := &fakeInserter{err: errors.New("insert denied")}
	s := NewService(&fakeUploader{}, &fakePredictor{}, ins, "b", nil)

	action := s.Decide(context.Background(), "user-42", Result{Prediction: MockPrediction}, false)
	assert.Equal(t, model.UserActionRejected, action)
}

func TestIdentifyRequiresOwner(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(up, &fakePredictor{}, &fakeInserter{}, "b", nil)

	_, err := s.Identify(context.Background(), "", "x.jpg", strings.NewReader("x"))
	assert.True(t, errors.Is(err, jujuerrors.NotValid))
	assert.Empty(t, up.bucket)
}
