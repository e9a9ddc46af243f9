package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	startErr error
	events   *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	*s.events = append(*s.events, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", events: &events}))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	require.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", events: &events, startErr: errors.New("boom")}))

	require.Error(t, m.Start(context.Background()))
	require.Equal(t, []string{"start:a", "start:b", "stop:a"}, events)
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.Error(t, m.Register(&recordingService{name: "a", events: &events}))
}
