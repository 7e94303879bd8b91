package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Operators can quote the code when a monthly export is rejected.
//
// # File Structure Errors (HDR/ROW)
//
//	HDR001 - No header: No line starting with "Datum/Zeit" was found
//	         Action: Check that the file is an interval export
//
//	ROW001 - Incomplete row: A data row is shorter than the header or has blank cells
//	         Action: Fill or remove the incomplete row and export again
//
// # Timestamp Errors (TS001-TS099)
//
//	TS001 - Malformed timestamp: A timestamp is not in DD.MM.YYYY HH:MM form
//	        Action: Check the first column of the reported line
//
//	TS002 - Empty file: The file has a header but no data rows
//	        Action: Export the month again
//
//	TS003 - Missing timestamps: One or more 15-minute marks of the month are absent
//	        Action: Re-export the month; the missing marks are listed in the reason
//
//	TS004 - Order mismatch: Timestamps are duplicated or out of order
//	        Action: Check the reported row for duplicates or swapped lines
//
// # Selection Errors (COL/FILE/REQ)
//
//	COL001 - Unknown column: A selected column is not in the header
//	         Action: Choose one of the listed available columns
//
//	FILE001 - Folder missing: The folder does not exist
//	          Action: Check the folder path
//
//	FILE002 - Unreadable file: The file could not be opened
//	          Action: Check permissions and that the file still exists
//
//	REQ001 - Invalid request: Files, columns or output path are missing or invalid
//	         Action: Select at least one file, two columns and an output folder
//
// # Output Errors (OUT/EXP)
//
//	OUT001 - No data: None of the selected files produced rows
//	         Action: Select files that passed validation
//
//	EXP001 - System busy: Too many exports in progress
//	         Action: Please wait a moment and try again
//
//	EXP002 - Cancelled: The operation was cancelled or timed out
//	         Action: Please try again
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the application log for the technical error
//
// Kinds are matched with errors.Is in catalogue order; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/JonMunkholm/intervalmerge/internal/interval"
	"github.com/JonMunkholm/intervalmerge/internal/measurement"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorKind struct {
	kind error
	msg  UserMessage
}

var errorKinds = []errorKind{
	{
		kind: measurement.ErrNoHeader,
		msg: UserMessage{
			Message: "No header line starting with \"Datum/Zeit\" was found",
			Action:  "Check that the file is an interval export",
			Code:    "HDR001",
		},
	},
	{
		kind: measurement.ErrIncompleteRow,
		msg: UserMessage{
			Message: "Missing data in one or more columns",
			Action:  "Fill or remove the incomplete row and export again",
			Code:    "ROW001",
		},
	},
	{
		kind: interval.ErrMalformedTimestamp,
		msg: UserMessage{
			Message: "A timestamp is not in DD.MM.YYYY HH:MM form",
			Action:  "Check the first column of the reported line",
			Code:    "TS001",
		},
	},
	{
		kind: interval.ErrEmptySequence,
		msg: UserMessage{
			Message: "The file has a header but no data rows",
			Action:  "Export the month again",
			Code:    "TS002",
		},
	},
	{
		kind: interval.ErrMissingTimestamps,
		msg: UserMessage{
			Message: "One or more 15-minute marks of the month are missing",
			Action:  "Re-export the month; the missing marks are listed in the reason",
			Code:    "TS003",
		},
	},
	{
		kind: interval.ErrSequenceMismatch,
		msg: UserMessage{
			Message: "Timestamps are duplicated or out of order",
			Action:  "Check the reported row for duplicates or swapped lines",
			Code:    "TS004",
		},
	},
	{
		kind: measurement.ErrUnknownColumn,
		msg: UserMessage{
			Message: "A selected column is not in the header",
			Action:  "Choose one of the listed available columns",
			Code:    "COL001",
		},
	},
	{
		kind: measurement.ErrFolderNotFound,
		msg: UserMessage{
			Message: "Folder does not exist",
			Action:  "Check the folder path",
			Code:    "FILE001",
		},
	},
	{
		kind: fs.ErrNotExist,
		msg: UserMessage{
			Message: "The file could not be opened",
			Action:  "Check permissions and that the file still exists",
			Code:    "FILE002",
		},
	},
	{
		kind: fs.ErrPermission,
		msg: UserMessage{
			Message: "The file could not be opened",
			Action:  "Check permissions and that the file still exists",
			Code:    "FILE002",
		},
	},
	{
		kind: ErrInvalidRequest,
		msg: UserMessage{
			Message: "Files, columns or output path are missing or invalid",
			Action:  "Select at least one file, two columns and an output folder",
			Code:    "REQ001",
		},
	},
	{
		kind: spreadsheet.ErrNoData,
		msg: UserMessage{
			Message: "No valid data to save",
			Action:  "Select files that passed validation",
			Code:    "OUT001",
		},
	},
	{
		kind: ErrTooManyExports,
		msg: UserMessage{
			Message: "Too many exports in progress",
			Action:  "Please wait a moment and try again",
			Code:    "EXP001",
		},
	},
	{
		kind: context.Canceled,
		msg: UserMessage{
			Message: "The operation was cancelled",
			Action:  "Please try again",
			Code:    "EXP002",
		},
	},
	{
		kind: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Please try again",
			Code:    "EXP002",
		},
	},
}

// defaultMessage is returned when no kind matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the application log for the technical error",
	Code:    "ERR000",
}

// Describe converts a technical error to a user-friendly message.
// It returns the zero UserMessage for nil.
func Describe(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, ek := range errorKinds {
		if errors.Is(err, ek.kind) {
			return ek.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := Describe(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a known kind rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return Describe(err).Code != defaultMessage.Code
}
