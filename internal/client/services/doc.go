// Package services contains application services for the storykeeper client:
// the session, the story feed with local fallback, and the outbox sync engine.
package services
