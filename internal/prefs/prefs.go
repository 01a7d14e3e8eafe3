// Package prefs remembers the custom aircraft and mission types a user has
// entered so the flight form can offer them again.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

// Store loads and saves one user's preferences.
type Store interface {
	Get(ctx context.Context, userID int64) (models.Preferences, error)
	Put(ctx context.Context, userID int64, p models.Preferences) error
}

// Remember appends any new custom aircraft or mission type from a submitted
// flight. Existing entries are matched case-insensitively and never duplicated.
func Remember(ctx context.Context, s Store, userID int64, f *models.Flight) error {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	aircraft, addedAircraft := appendUnique(p.CustomAircraftTypes, f.CustomAircraftType)
	missions, addedMission := appendUnique(p.CustomMissionTypes, f.CustomMissionType)
	if !addedAircraft && !addedMission {
		return nil
	}
	p.CustomAircraftTypes = aircraft
	p.CustomMissionTypes = missions
	return s.Put(ctx, userID, p)
}

func appendUnique(list []string, v string) ([]string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return list, false
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list, false
		}
	}
	return append(list, v), true
}

// normalize keeps the JSON shape stable: lists are never null.
func normalize(p models.Preferences) models.Preferences {
	if p.CustomAircraftTypes == nil {
		p.CustomAircraftTypes = []string{}
	}
	if p.CustomMissionTypes == nil {
		p.CustomMissionTypes = []string{}
	}
	return p
}

func decode(data []byte) (models.Preferences, error) {
	var p models.Preferences
	if len(data) == 0 {
		return normalize(p), nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decoding preferences: %w", err)
	}
	return normalize(p), nil
}
