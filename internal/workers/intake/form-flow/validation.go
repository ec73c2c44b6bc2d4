package formflow

import (
	"regexp"
	"strings"
	"time"

	"helpdesk-bot/internal/common/errors"
)

const dateLayout = "02.01.2006"

var (
	dateRangePattern = regexp.MustCompile(`^(\d{2}\.\d{2}\.\d{4}) - (\d{2}\.\d{2}\.\d{4})$`)
	nonDigits        = regexp.MustCompile(`\D`)
	onlyDigits       = regexp.MustCompile(`^\d+$`)
)

// ValidatePhone accepts any text whose digits start with 7 or 8; other
// characters are ignored.
func ValidatePhone(text string) error {
	digits := nonDigits.ReplaceAllString(text, "")
	if !strings.HasPrefix(digits, "7") && !strings.HasPrefix(digits, "8") {
		return errors.NewFormatError(MsgPhonePrefix)
	}
	if !onlyDigits.MatchString(digits) {
		return errors.NewFormatError(MsgPhoneDigits)
	}
	return nil
}

// ValidateDateRange checks "DD.MM.YYYY - DD.MM.YYYY" with real calendar
// dates and start <= end.
func ValidateDateRange(text string) error {
	m := dateRangePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return errors.NewFormatError(MsgDatesPattern)
	}

	start, err := time.Parse(dateLayout, m[1])
	if err != nil {
		return errors.NewFormatError(MsgDatesCalendar)
	}
	end, err := time.Parse(dateLayout, m[2])
	if err != nil {
		return errors.NewFormatError(MsgDatesCalendar)
	}
	if start.After(end) {
		return errors.NewOrderError(MsgDatesOrder)
	}
	return nil
}

// ValidateFullName requires exactly three whitespace-separated words.
func ValidateFullName(text string) error {
	if len(strings.Fields(text)) != 3 {
		return errors.NewFormatError(MsgFullNameFormat)
	}
	return nil
}

// ValidateHandle requires a self-declared handle to start with "@".
func ValidateHandle(text string) error {
	if !strings.HasPrefix(text, "@") {
		return errors.NewFormatError(MsgUsernameRetry)
	}
	return nil
}
