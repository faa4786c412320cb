package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"lorelink/internal/models"
)

const (
	MaxPostLength        = 2000
	MaxCommentLength     = 500
	MaxDisplayNameLength = 50
	MaxBioLength         = 200
	MaxAvatarRefLength   = 512
	MinPasswordLength    = 6

	minHandleLength  = 3
	maxHandleBase    = 24
	handleRetryLimit = 5
)

// validateText trims text and checks it is non-empty and at most max characters.
func validateText(field, text string, max int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s must not be empty", models.ErrValidation, field)
	}
	if utf8.RuneCountInString(trimmed) > max {
		return "", fmt.Errorf("%w: %s must be at most %d characters", models.ErrValidation, field, max)
	}
	return trimmed, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, MinPasswordLength)
	}
	return nil
}

func normalizeGender(gender string) (string, error) {
	switch g := strings.ToLower(strings.TrimSpace(gender)); g {
	case models.GenderMale, models.GenderFemale:
		return g, nil
	case "", models.GenderUnknown:
		return models.GenderUnknown, nil
	default:
		return "", fmt.Errorf("%w: unknown gender %q", models.ErrValidation, gender)
	}
}

// normalizePatch trims and validates every field present in the patch.
func normalizePatch(patch models.ProfilePatch) (models.ProfilePatch, error) {
	if patch.Empty() {
		return patch, fmt.Errorf("%w: nothing to update", models.ErrValidation)
	}

	var out models.ProfilePatch
	if patch.DisplayName != nil {
		name, err := validateText("displayName", *patch.DisplayName, MaxDisplayNameLength)
		if err != nil {
			return out, err
		}
		out.DisplayName = &name
	}
	if patch.Bio != nil {
		bio := strings.TrimSpace(*patch.Bio)
		if utf8.RuneCountInString(bio) > MaxBioLength {
			return out, fmt.Errorf("%w: bio must be at most %d characters", models.ErrValidation, MaxBioLength)
		}
		out.Bio = &bio
	}
	if patch.AvatarRef != nil {
		ref := strings.TrimSpace(*patch.AvatarRef)
		if len(ref) > MaxAvatarRefLength || strings.ContainsAny(ref, " \t\n") {
			return out, fmt.Errorf("%w: invalid avatarRef", models.ErrValidation)
		}
		out.AvatarRef = &ref
	}
	return out, nil
}

// baseHandle derives a handle stem from an account identifier such as an email:
// the local part, lowercased, restricted to [a-z0-9_].
func baseHandle(seed string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(seed), "@")

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.', r == '-', r == '+':
			b.WriteRune('_')
		}
	}

	handle := strings.Trim(b.String(), "_")
	if len(handle) > maxHandleBase {
		handle = strings.TrimRight(handle[:maxHandleBase], "_")
	}
	if len(handle) < minHandleLength {
		handle = strings.Trim("user_"+handle, "_")
	}
	return handle
}

// pickHandle returns base if free, otherwise base followed by the smallest free numeric suffix.
func pickHandle(base string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, h := range taken {
		used[h] = true
	}
	if !used[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		if !used[candidate] {
			return candidate
		}
	}
}
