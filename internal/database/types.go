package database

import (
	"context"
	"errors"

	"github.com/example/wordgo/pkg/models"
)

var (
	// ErrNotInitialized is returned by every accessor called before Init completes
	ErrNotInitialized = errors.New("database not initialized")
	// ErrNotFound is returned when a looked-up row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrCorruptSnapshot is returned when a persisted snapshot is not a SQLite image
	ErrCorruptSnapshot = errors.New("snapshot is not a valid database image")
)

// Flush tracks the snapshot write that follows a mutation.
// Callers that need durability wait on it; everyone else can ignore it.
type Flush struct {
	done chan struct{}
	err  error
}

func newFlush() *Flush {
	return &Flush{done: make(chan struct{})}
}

// completedFlush is returned by mutations that wrote nothing
func completedFlush() *Flush {
	f := newFlush()
	close(f.done)
	return f
}

func (f *Flush) finish(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the snapshot write has finished
func (f *Flush) Done() <-chan struct{} { return f.done }

// Wait blocks until the snapshot write has finished and returns its error
func (f *Flush) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProfilePatch lists the profile columns that may be changed after creation.
// Nil fields are left untouched.
type ProfilePatch struct {
	DisplayName        *string
	AvatarEmoji        *string
	NativeLanguage     *string
	InterfaceLanguages *models.StringList
	Settings           *models.Settings
}

// Empty reports whether the patch changes nothing
func (p ProfilePatch) Empty() bool {
	return p.DisplayName == nil && p.AvatarEmoji == nil && p.NativeLanguage == nil &&
		p.InterfaceLanguages == nil && p.Settings == nil
}

// LanguagePatch lists the enrollment columns that may be changed
type LanguagePatch struct {
	LanguageName *string
	LevelCode    *string
	Specialty    *string
	DailyWords   *int
	IsActive     *bool
}

func (p LanguagePatch) Empty() bool {
	return p.LanguageName == nil && p.LevelCode == nil && p.Specialty == nil &&
		p.DailyWords == nil && p.IsActive == nil
}

// ProfileFilter narrows ListProfiles
type ProfileFilter struct {
	IncludeArchived bool
	Type            models.ProfileType // empty means any
}
