// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package fixtures

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/danielhkuo/paco-server/models"
	"github.com/danielhkuo/paco-server/schedule"
)

// MaxFileSize bounds fixture files read at startup (1MB).
const MaxFileSize = 1024 * 1024

// File is the top level of a fixtures document.
type File struct {
	Experiments []Experiment `yaml:"experiments"`
}

type Experiment struct {
	Creator     string   `yaml:"creator"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	ConsentForm string   `yaml:"consent_form"`
	Feedback    string   `yaml:"feedback"`
	Published   bool     `yaml:"published"`
	Viewers     []string `yaml:"viewers"`
	Inputs      []Input  `yaml:"inputs"`
	Schedule    Schedule `yaml:"signal_schedule"`
	Joins       []Join   `yaml:"joins"`
}

type Input struct {
	Name        string   `yaml:"name"`
	Text        string   `yaml:"text"`
	Type        string   `yaml:"type"`
	Mandatory   bool     `yaml:"mandatory"`
	ListChoices []string `yaml:"list_choices"`
	LikertSteps int      `yaml:"likert_steps"`
}

// Schedule spells dates as YYYY-MM-DD and times of day as HH:MM:SS.
type Schedule struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Every     int    `yaml:"every"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
	Editable  bool   `yaml:"editable"`
}

type Join struct {
	Subject  string `yaml:"subject"`
	Timezone string `yaml:"timezone"`
}

// Load reads and decodes a fixtures file. Unknown keys are an error.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return File{}, fmt.Errorf("stat fixtures: %w", err)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("fixtures file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	var file File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return File{}, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	return file, nil
}

// Model converts the fixture into an experiment ready for Store.Create.
func (e Experiment) Model() (models.Experiment, error) {
	sched, err := e.Schedule.Model()
	if err != nil {
		return models.Experiment{}, fmt.Errorf("experiment %q: %w", e.Title, err)
	}

	inputs := make([]models.InputSpec, 0, len(e.Inputs))
	for _, in := range e.Inputs {
		inputs = append(inputs, models.InputSpec{
			Name:        in.Name,
			Text:        in.Text,
			Type:        in.Type,
			Mandatory:   in.Mandatory,
			ListChoices: in.ListChoices,
			LikertSteps: in.LikertSteps,
		})
	}

	return models.Experiment{
		Title:          e.Title,
		Description:    e.Description,
		Creator:        e.Creator,
		ConsentForm:    e.ConsentForm,
		Published:      e.Published,
		Feedback:       e.Feedback,
		Inputs:         inputs,
		Viewers:        e.Viewers,
		SignalSchedule: sched,
	}, nil
}

func (s Schedule) Model() (models.SignalSchedule, error) {
	start, err := civil.ParseDate(s.StartDate)
	if err != nil {
		return models.SignalSchedule{}, fmt.Errorf("%w: start_date %q", models.ErrInvalid, s.StartDate)
	}
	end, err := civil.ParseDate(s.EndDate)
	if err != nil {
		return models.SignalSchedule{}, fmt.Errorf("%w: end_date %q", models.ErrInvalid, s.EndDate)
	}
	from, err := civil.ParseTime(s.StartTime)
	if err != nil {
		return models.SignalSchedule{}, fmt.Errorf("%w: start_time %q", models.ErrInvalid, s.StartTime)
	}
	to, err := civil.ParseTime(s.EndTime)
	if err != nil {
		return models.SignalSchedule{}, fmt.Errorf("%w: end_time %q", models.ErrInvalid, s.EndTime)
	}

	every := s.Every
	if every == 0 {
		every = 1
	}
	return models.SignalSchedule{
		Recurrence: models.RecurrenceRule{StartDate: start, EndDate: end, Every: every},
		Window:     models.DailyWindow{StartTime: from, EndTime: to},
		Editable:   s.Editable,
	}, nil
}

// Seed creates every fixture experiment and its joins. An experiment whose
// creator already owns one with the same title is skipped, so seeding the
// same file on every start is harmless.
func Seed(ctx context.Context, store *schedule.Store, file File) (int, error) {
	created := 0
	for _, fe := range file.Experiments {
		e, err := fe.Model()
		if err != nil {
			return created, err
		}

		owned, err := store.Owned(ctx, fe.Creator)
		if err != nil {
			return created, err
		}
		if slices.ContainsFunc(owned, func(o models.Experiment) bool { return o.Title == fe.Title }) {
			slog.Debug("fixture already present", "title", fe.Title, "creator", fe.Creator)
			continue
		}

		e, err = store.Create(ctx, fe.Creator, e)
		if err != nil {
			return created, fmt.Errorf("seeding %q: %w", fe.Title, err)
		}
		created++

		for _, j := range fe.Joins {
			if _, _, err := store.Join(ctx, j.Subject, e.ID, nil, j.Timezone); err != nil {
				return created, fmt.Errorf("seeding join of %s to %q: %w", j.Subject, fe.Title, err)
			}
		}
	}

	slog.Info("fixtures seeded", "created", created, "total", len(file.Experiments))
	return created, nil
}
