// Package mock provides an in-memory mock implementation of
// [dialogue.Service] for use in unit tests.
//
// The mock records every method call and allows the test to configure return
// values via exported fields. It is safe for concurrent use.
//
// Example:
//
//	svc := &mock.Service{BootstrapResult: "sess-1"}
//	svc.OnChunk(handler)
//	svc.EmitChunk("sess-1", &response.Chunk{Transcript: "well met", Final: true})
package mock

import (
	"context"
	"sync"

	"github.com/tavernworks/parley/internal/dialogue"
	"github.com/tavernworks/parley/pkg/response"
)

// Compile-time interface assertion.
var _ dialogue.Service = (*Service)(nil)

// TextCall records the arguments of a single [Service.SendText] call.
type TextCall struct {
	SessionID string
	Text      string
}

// AudioCall records the arguments of a single [Service.SendAudio] call.
type AudioCall struct {
	SessionID string
	PCM       []byte
}

// TriggerCall records the arguments of a single [Service.SendTrigger] call.
type TriggerCall struct {
	SessionID string
	Trigger   string
}

// Service is a mock implementation of [dialogue.Service].
// All exported *Result and *Error fields control return values.
// All exported *Calls fields accumulate invocation records.
type Service struct {
	mu sync.Mutex

	// BootstrapResult is the session id returned by [Service.Bootstrap].
	BootstrapResult string

	// BootstrapResults maps character ids to session ids, taking precedence
	// over BootstrapResult when the character id is present.
	BootstrapResults map[string]string

	// BootstrapError is returned by [Service.Bootstrap].
	BootstrapError error

	// SendTextError is returned by [Service.SendText].
	SendTextError error

	// SendAudioError is returned by [Service.SendAudio].
	SendAudioError error

	// SendTriggerError is returned by [Service.SendTrigger].
	SendTriggerError error

	// CloseError is returned by [Service.Close].
	CloseError error

	// BootstrapCalls records all character ids passed to Bootstrap.
	BootstrapCalls []string

	// TextCalls records all SendText invocations.
	TextCalls []TextCall

	// AudioCalls records all SendAudio invocations.
	AudioCalls []AudioCall

	// TriggerCalls records all SendTrigger invocations.
	TriggerCalls []TriggerCall

	// CallCountClose records how many times Close was called.
	CallCountClose int

	handler dialogue.ChunkHandler
}

// Bootstrap implements [dialogue.Service].
func (s *Service) Bootstrap(_ context.Context, characterID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BootstrapCalls = append(s.BootstrapCalls, characterID)
	if s.BootstrapError != nil {
		return dialogue.NoSession, s.BootstrapError
	}
	if id, ok := s.BootstrapResults[characterID]; ok {
		return id, nil
	}
	return s.BootstrapResult, nil
}

// SendText implements [dialogue.Service].
func (s *Service) SendText(_ context.Context, sessionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TextCalls = append(s.TextCalls, TextCall{SessionID: sessionID, Text: text})
	return s.SendTextError
}

// SendAudio implements [dialogue.Service].
func (s *Service) SendAudio(_ context.Context, sessionID string, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioCalls = append(s.AudioCalls, AudioCall{SessionID: sessionID, PCM: append([]byte(nil), pcm...)})
	return s.SendAudioError
}

// SendTrigger implements [dialogue.Service].
func (s *Service) SendTrigger(_ context.Context, sessionID, trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TriggerCalls = append(s.TriggerCalls, TriggerCall{SessionID: sessionID, Trigger: trigger})
	return s.SendTriggerError
}

// OnChunk implements [dialogue.Service].
func (s *Service) OnChunk(handler dialogue.ChunkHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Close implements [dialogue.Service]. Returns CloseError.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// EmitChunk delivers a chunk to the registered handler, simulating a streamed
// response from the service. No-op when no handler is registered.
func (s *Service) EmitChunk(sessionID string, chunk *response.Chunk) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(sessionID, chunk)
	}
}
