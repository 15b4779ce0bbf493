package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGeometry = `{
  "geometry": {
    "rooms": [
      {
        "id": 1,
        "caption": "corridor",
        "sub_rooms": [
          {
            "id": 1,
            "polygon": [{"X":0,"Y":0},{"X":10,"Y":0},{"X":10,"Y":2},{"X":0,"Y":2}]
          }
        ]
      }
    ],
    "doors": [
      {
        "id": 1,
        "kind": "transition",
        "p1": {"X":10,"Y":0.75},
        "p2": {"X":10,"Y":1.25},
        "room1": 1,
        "sub_room1": 1,
        "room2": -1,
        "to_outside": true
      }
    ],
    "goals": [
      {"id": 1, "is_final": true, "room_id": -1, "polygon": [{"X":20,"Y":1}]}
    ]
  },
  "events": [
    {"time": 5, "door": 1, "state": "closed"}
  ],
  "population": [
    {"room_id": 1, "sub_room_id": 1, "count": 5, "final_goal_id": 1, "v0": 1.2, "tau": 0.5}
  ]
}`

func writeSampleFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "geometry.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleGeometry), 0o644))
	return path
}

func TestJSONLoaderBuildsBuildingEventsAndPopulation(t *testing.T) {
	path := writeSampleFile(t)
	loader := config.JSONLoader{}
	cfg := config.Config{GeometryFile: path, Seed: 1}

	loaded, err := loader.Load(cfg)
	require.NoError(t, err)

	require.Len(t, loaded.Building.Rooms, 1)
	sr := loaded.Building.SubRoom(building.Key{RoomID: 1, SubRoomID: 1})
	require.NotNil(t, sr)
	assert.Len(t, sr.TransitionUIDs, 1)

	assert.Equal(t, 1, loaded.Events.Len())
	assert.Len(t, loaded.Population, 5)
	assert.True(t, loaded.FinalGoalID[1])
}

const escalatorGeometry = `{
  "geometry": {
    "rooms": [
      {
        "id": 1,
        "sub_rooms": [
          {
            "id": 1,
            "kind": "escalator",
            "escalator_speed": 0.5,
            "escalator_direction": "up",
            "up": {"px": 0, "py": 10},
            "down": {"px": 0, "py": 0},
            "polygon": [{"X":-1,"Y":0},{"X":1,"Y":0},{"X":1,"Y":10},{"X":-1,"Y":10}]
          }
        ]
      }
    ],
    "doors": [],
    "goals": []
  }
}`

func TestJSONLoaderWiresEscalatorReferencePoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escalator.json")
	require.NoError(t, os.WriteFile(path, []byte(escalatorGeometry), 0o644))

	loaded, err := config.JSONLoader{}.Load(config.Config{GeometryFile: path, Seed: 1})
	require.NoError(t, err)

	sr := loaded.Building.SubRoom(building.Key{RoomID: 1, SubRoomID: 1})
	require.NotNil(t, sr)
	assert.Equal(t, building.KindEscalator, sr.Kind)
	assert.Equal(t, building.EscalatorUp, sr.EscalatorDirection)
	assert.InDelta(t, 0.5, sr.EscalatorSpeed, 1e-9)
	require.NotNil(t, sr.Up)
	require.NotNil(t, sr.Down)
	assert.Equal(t, 10.0, sr.Up.Y)
	assert.Equal(t, 0.0, sr.Down.Y)
}
