package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestSpecKey returns the cache key for a test's session spec
func (r *CacheKeyStruct) TestSpecKey(testID string) string {
	return fmt.Sprintf("test:%s:spec", testID)
}

// AttemptDraftKey returns the hash holding an attempt's autosaved answers
func (r *CacheKeyStruct) AttemptDraftKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:draft", attemptID)
}

// CandidateActiveAttemptKey returns the key recording a candidate's live attempt for a test
func (r *CacheKeyStruct) CandidateActiveAttemptKey(testID string, candidateID int64) string {
	return fmt.Sprintf("candidate:%d:test:%s:attempt", candidateID, testID)
}

// StartRateKey returns the fixed-window counter for session starts
func (r *CacheKeyStruct) StartRateKey(candidateID int64, window int64) string {
	return fmt.Sprintf("ratelimit:start:%d:%d", candidateID, window)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test's proctor feed
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
