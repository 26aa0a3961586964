package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CaptchaService implements a challenge/response gate backed by the shared
// cache. A client requests a challenge token before rendering the form and
// posts it back as captcha_response; each token verifies exactly once.
type CaptchaService struct {
	cache  CacheRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewCaptchaService constructs a CaptchaService.
func NewCaptchaService(cache CacheRepository, ttl time.Duration, logger *zap.Logger) *CaptchaService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptchaService{cache: cache, ttl: ttl, logger: logger}
}

// Challenge issues a one-time token bound to the requester's IP.
func (s *CaptchaService) Challenge(ctx context.Context, remoteIP string) (string, error) {
	token := uuid.NewString()
	if err := s.cache.Set(ctx, captchaKey(token), remoteIP, s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Verify consumes the token. It fails for unknown, expired or replayed
// tokens and for tokens issued to a different IP.
func (s *CaptchaService) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	if response == "" {
		return false, nil
	}
	var issuedTo string
	if err := s.cache.Get(ctx, captchaKey(response), &issuedTo); err != nil {
		return false, nil
	}
	if err := s.cache.DeleteByPattern(ctx, captchaKey(response)); err != nil {
		s.logger.Warn("captcha token cleanup failed", zap.Error(err))
	}
	return issuedTo == remoteIP, nil
}

func captchaKey(token string) string {
	return "captcha:" + token
}

var linkPattern = regexp.MustCompile(`https?://`)

// KeywordSpamClassifier rejects submissions whose free text matches any of
// the configured terms or carries too many links.
type KeywordSpamClassifier struct {
	terms    []string
	maxLinks int
}

// NewKeywordSpamClassifier constructs a classifier. With no terms it only
// enforces the link ceiling.
func NewKeywordSpamClassifier(terms []string, maxLinks int) *KeywordSpamClassifier {
	if maxLinks <= 0 {
		maxLinks = 5
	}
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	return &KeywordSpamClassifier{terms: lowered, maxLinks: maxLinks}
}

// IsSpam classifies the concatenated free-text content of a submission.
func (c *KeywordSpamClassifier) IsSpam(_ context.Context, content, _ string) (bool, error) {
	if content == "" {
		return false, nil
	}
	if len(linkPattern.FindAllStringIndex(content, -1)) > c.maxLinks {
		return true, nil
	}
	lowered := strings.ToLower(content)
	for _, term := range c.terms {
		if strings.Contains(lowered, term) {
			return true, nil
		}
	}
	return false, nil
}
