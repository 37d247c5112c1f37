package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hearth/internal/domain"
)

// Model is the pluggable probabilistic scene classifier. The rule tables win
// on exact keyword hits; the model acts as a prior over hypotheses when no
// rule fires.
type Model interface {
	Predict(ctx context.Context, features Features) ([]domain.SceneHypothesis, error)
}

// HTTPModel calls an external classifier service.
type HTTPModel struct {
	baseURL string
	http    *http.Client
}

func NewHTTPModel(baseURL string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &HTTPModel{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (m *HTTPModel) Enabled() bool {
	return m != nil && m.baseURL != ""
}

type predictResponse struct {
	Scenes []domain.SceneHypothesis `json:"scenes"`
}

func (m *HTTPModel) Predict(ctx context.Context, features Features) ([]domain.SceneHypothesis, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("scene model service is not configured")
	}
	body, _ := json.Marshal(features)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/scenes/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := m.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scene model status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out predictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return out.Scenes, nil
}

// StaticPrior is the in-tree fallback model: deterministic priors from the
// extracted features, no learning.
type StaticPrior struct{}

func (StaticPrior) Predict(_ context.Context, features Features) ([]domain.SceneHypothesis, error) {
	if features.Text == "" {
		return []domain.SceneHypothesis{
			{Type: domain.SceneBackground, SubType: domain.SubSceneCasualChat, Confidence: 0.6},
		}, nil
	}
	if features.SpeakerCount >= 2 {
		return []domain.SceneHypothesis{
			{Type: domain.SceneHumanHuman, SubType: domain.SubSceneFamilyChat, Confidence: 0.65},
			{Type: domain.SceneHumanDevice, SubType: domain.SubSceneCasualChat, Confidence: 0.25},
		}, nil
	}
	if features.SentenceType == SentenceInterrogative {
		return []domain.SceneHypothesis{
			{Type: domain.SceneHumanDevice, SubType: domain.SubSceneInfoQuery, Confidence: 0.55},
			{Type: domain.SceneSelfTalk, SubType: domain.SubSceneCasualChat, Confidence: 0.3},
		}, nil
	}
	return []domain.SceneHypothesis{
		{Type: domain.SceneSelfTalk, SubType: domain.SubSceneCasualChat, Confidence: 0.5},
		{Type: domain.SceneHumanDevice, SubType: domain.SubSceneCasualChat, Confidence: 0.3},
	}, nil
}
