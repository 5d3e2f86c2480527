package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/tomyedwab/ocidb/oci"
)

// Driver-side error codes.
const (
	drvNotInitialized     = 1
	drvAlreadyInitialized = 2
	drvNullHandle         = 3
	drvInvalidHandle      = 4
	drvNotPrepared        = 5
	drvNoCurrentRow       = 6
	drvColumnIndex        = 7
	drvTypeMismatch       = 9
	drvPoolClosed         = 10
	drvInternal           = 99
)

// Server-side error codes not exported by package oci.
const (
	oraInternal          = 600
	oraResourceBusy      = 54
	oraUniqueViolated    = 1
	oraInvalidSQL        = 900
	oraInvalidIdentifier = 904
	oraNoSuchTable       = 942
	oraNotNull           = 1400
	oraIllegalVariable   = 1036
	oraInvalidNumber     = 1722
	oraCheckViolated     = 2290
	oraParentKeyNotFound = 2291
	oraNoSuchObject      = 4043
	oraNoSuchQueue       = 24010
	oraPayloadMismatch   = 25215
	oraBufferOverflow    = 20000
	oraYearRange         = 1841
	oraMonthRange        = 1843
	oraDayRange          = 1847
	oraHourRange         = 1850
	oraMinuteRange       = 1851
	oraSecondRange       = 1852
)

func serverError(code int, format string, args ...any) *oci.Error {
	return &oci.Error{
		Type: oci.ErrorServer,
		Code: code,
		Text: fmt.Sprintf("ORA-%05d: ", code) + fmt.Sprintf(format, args...),
	}
}

func driverError(code int, format string, args ...any) *oci.Error {
	return &oci.Error{
		Type: oci.ErrorDriver,
		Code: code,
		Text: fmt.Sprintf("OCI-%05d: ", code) + fmt.Sprintf(format, args...),
	}
}

// sqlError converts an error raised by SQLite into a native error.
func sqlError(ctx context.Context, err error) *oci.Error {
	if err == nil {
		return nil
	}
	var oe *oci.Error
	if errors.As(err, &oe) {
		return oe
	}
	if ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
		return serverError(oci.CodeUserCancel, "user requested cancel of current operation")
	}

	var se sqlite3.Error
	if !errors.As(err, &se) {
		return &oci.Error{Type: oci.ErrorUnknown, Text: err.Error()}
	}
	msg := se.Error()
	code := oraInternal
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		code = oraUniqueViolated
	case sqlite3.ErrConstraintNotNull:
		code = oraNotNull
	case sqlite3.ErrConstraintCheck:
		code = oraCheckViolated
	case sqlite3.ErrConstraintForeignKey:
		code = oraParentKeyNotFound
	default:
		switch se.Code {
		case sqlite3.ErrInterrupt:
			code = oci.CodeUserCancel
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			code = oraResourceBusy
		case sqlite3.ErrError:
			switch {
			case strings.Contains(msg, "no such table"):
				code = oraNoSuchTable
			case strings.Contains(msg, "no such column"):
				code = oraInvalidIdentifier
			case strings.Contains(msg, "syntax error"), strings.Contains(msg, "incomplete input"):
				code = oraInvalidSQL
			case strings.Contains(msg, "ORU-"):
				code = oraBufferOverflow
			}
		}
	}
	return serverError(code, "%s", msg)
}

// nativeError returns err as a native error, wrapping foreign errors as
// internal driver failures.
func nativeError(err error) *oci.Error {
	if err == nil {
		return nil
	}
	var oe *oci.Error
	if errors.As(err, &oe) {
		return oe
	}
	return driverError(drvInternal, "%v", err)
}
