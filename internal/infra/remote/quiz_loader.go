// Package remote loads quizzes from the quiz authoring service over HTTP.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-live-service/internal/domain"
)

const maxQuizBytes = 4 << 20

// QuizLoader resolves quizzes with GET {baseURL}/quizzes/{ref}.
type QuizLoader struct {
	baseURL string
	client  *http.Client
}

func NewQuizLoader(baseURL string, timeout time.Duration) *QuizLoader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &QuizLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizRef string) (domain.Quiz, error) {
	endpoint := l.baseURL + "/quizzes/" + url.PathEscape(quizRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("build quiz request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: fetch quiz %s: %v", domain.ErrUpstream, quizRef, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizRef)
	case resp.StatusCode != http.StatusOK:
		return domain.Quiz{}, fmt.Errorf("%w: fetch quiz %s: status %d", domain.ErrUpstream, quizRef, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxQuizBytes))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: read quiz %s: %v", domain.ErrUpstream, quizRef, err)
	}
	quiz, err := domain.DecodeQuiz(quizRef, raw)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	return quiz, nil
}
