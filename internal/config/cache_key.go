package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionMetaKey returns the key holding a session's topic, filter and duration
func (r *CacheKeyStruct) SessionMetaKey(userID, examID int) string {
	return fmt.Sprintf("user:%d:exam:%d:meta", userID, examID)
}

// RemainingKey returns the key holding a session's remaining countdown seconds
func (r *CacheKeyStruct) RemainingKey(userID, examID int) string {
	return fmt.Sprintf("user:%d:exam:%d:remaining", userID, examID)
}

// CursorKey returns the key holding the index of the question on screen
func (r *CacheKeyStruct) CursorKey(userID, examID int) string {
	return fmt.Sprintf("user:%d:exam:%d:cursor", userID, examID)
}

// AnswersKey returns the hash key holding question id -> answer
func (r *CacheKeyStruct) AnswersKey(userID, examID int) string {
	return fmt.Sprintf("user:%d:exam:%d:answers", userID, examID)
}

// PaperKey returns the key caching the question paper of a session
func (r *CacheKeyStruct) PaperKey(userID, examID int) string {
	return fmt.Sprintf("user:%d:exam:%d:paper", userID, examID)
}

// ReviewKey returns the key holding the last validation response for the review page
func (r *CacheKeyStruct) ReviewKey(userID, examID int) string {
	return fmt.Sprintf("user:%d:exam:%d:review", userID, examID)
}

// SessionKeys returns every key cleared when a session ends.
func (r *CacheKeyStruct) SessionKeys(userID, examID int) []string {
	return []string{
		r.SessionMetaKey(userID, examID),
		r.RemainingKey(userID, examID),
		r.CursorKey(userID, examID),
		r.AnswersKey(userID, examID),
		r.PaperKey(userID, examID),
	}
}

var CacheKey = NewCacheKeyStruct()
