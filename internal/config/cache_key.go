package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey holds the identity of a candidate token, keyed by its JTI.
func (r *CacheKeyStruct) CandidateSessionKey(jti string) string {
	return fmt.Sprintf("candidate:session:%s", jti)
}

// ActiveAttemptKey maps an admission number to the JTI of its active attempt.
func (r *CacheKeyStruct) ActiveAttemptKey(admissionNumber string) string {
	return fmt.Sprintf("candidate:%s:active_attempt", admissionNumber)
}

// ActiveAttemptPattern matches every ActiveAttemptKey.
func (r *CacheKeyStruct) ActiveAttemptPattern() string {
	return "candidate:*:active_attempt"
}

// AdmissionFromAttemptKey inverts ActiveAttemptKey.
func (r *CacheKeyStruct) AdmissionFromAttemptKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, "candidate:"), ":active_attempt")
}

// StreamLockKey is held while a proctored stream is open for a token.
func (r *CacheKeyStruct) StreamLockKey(jti string) string {
	return fmt.Sprintf("candidate:session:%s:stream", jti)
}

// CompletionKey marks a token whose exam has been submitted.
func (r *CacheKeyStruct) CompletionKey(jti string) string {
	return fmt.Sprintf("candidate:session:%s:completed", jti)
}

// SubmissionClaimKey is set by the first path that submits a token's exam.
func (r *CacheKeyStruct) SubmissionClaimKey(jti string) string {
	return fmt.Sprintf("candidate:session:%s:claimed", jti)
}

// QuestionPayloadKey returns the cache key for the candidate-facing question paper
func (r *CacheKeyStruct) QuestionPayloadKey() string {
	return "exam:questions:payload"
}

// AnswerKeyKey returns the cache key for the answer key used by grading
func (r *CacheKeyStruct) AnswerKeyKey() string {
	return "exam:questions:key"
}

// MonitorChannel returns the Redis PubSub channel name for the live monitor
func (r *CacheKeyStruct) MonitorChannel() string {
	return "exam:monitor"
}

var CacheKey = NewCacheKeyStruct()
