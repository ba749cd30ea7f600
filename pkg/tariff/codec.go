package tariff

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Magic identifies an encoded tariff.
const Magic = "Mogwai tariff"

// FormatVersion is the version Encode emits. Version 1 carries UTC
// timestamps only; version 2 adds a zone identifier per timestamp.
const FormatVersion uint16 = 2

// Encoded record sizes without the zone strings' contents.
const (
	recordSizeV1 = 8 + 8 + 2 + 4 + 8
	recordSizeV2 = recordSizeV1 + 4 + 4
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Encode serializes t in the current format version, little-endian.
//
// Layout: magic, u16 version, name, u32 period count, then per period
// u64 start, u64 end, start zone, end zone, u16 repeat type, u32 repeat
// period and u64 capacity limit. Strings are a u32 byte length followed by
// UTF-8 bytes.
func Encode(t *Tariff) []byte {
	return encode(t, FormatVersion, binary.LittleEndian)
}

func encode(t *Tariff, version uint16, order byteOrder) []byte {
	buf := make([]byte, 0, len(Magic)+2+4+len(t.name)+4+len(t.periods)*(recordSizeV2+16))
	buf = append(buf, Magic...)
	buf = order.AppendUint16(buf, version)
	buf = appendString(buf, order, t.name)
	buf = order.AppendUint32(buf, uint32(len(t.periods)))
	for _, p := range t.periods {
		buf = order.AppendUint64(buf, uint64(p.start.Unix()))
		buf = order.AppendUint64(buf, uint64(p.end.Unix()))
		if version >= 2 {
			buf = appendString(buf, order, zoneID(p.start))
			buf = appendString(buf, order, zoneID(p.end))
		}
		buf = order.AppendUint16(buf, uint16(p.repeatType))
		buf = order.AppendUint32(buf, p.repeatPeriod)
		buf = order.AppendUint64(buf, p.capacityLimit)
	}
	return buf
}

func appendString(buf []byte, order byteOrder, s string) []byte {
	buf = order.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

type rawPeriod struct {
	start, end         uint64
	startZone, endZone string
	repeatType         uint16
	repeatPeriod       uint32
	capacityLimit      uint64
}

// Decode parses and validates an encoded tariff. Versions 1 and 2 are
// accepted in either byte order; the order is detected from the version
// field. Any deviation from the canonical encoding, including trailing
// bytes, is rejected. Errors are *DecodeError.
func Decode(data []byte) (*Tariff, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, decodeError(ErrMagic, 0, nil)
	}

	r := &reader{buf: data[len(Magic):], order: binary.LittleEndian}
	version, ok := r.uint16()
	if !ok {
		return nil, decodeError(ErrMalformed, 0, fmt.Errorf("%w: truncated header", ErrMalformed))
	}
	switch version {
	case 1, 2:
	case 0x0100, 0x0200:
		r.order = binary.BigEndian
		version = bits.ReverseBytes16(version)
	default:
		return nil, decodeError(ErrVersion, 0, fmt.Errorf("%w %#04x", ErrVersion, version))
	}

	name, raws, err := r.payload(version)
	if err != nil {
		return nil, decodeError(ErrMalformed, 0, err)
	}

	periods := make([]*Period, 0, len(raws))
	for i, raw := range raws {
		p, err := raw.period(version)
		if err != nil {
			return nil, decodeError(ErrInvalidPeriod, i+1, err)
		}
		periods = append(periods, p)
	}

	t, err := New(name, periods)
	if err != nil {
		return nil, decodeError(ErrInvalidTariff, 0, err)
	}
	return t, nil
}

func (raw rawPeriod) period(version uint16) (*Period, error) {
	startZone, endZone := "UTC", "UTC"
	if version >= 2 {
		startZone, endZone = raw.startZone, raw.endZone
	}
	start, err := timeFromUnix(raw.start, startZone)
	if err != nil {
		return nil, err
	}
	end, err := timeFromUnix(raw.end, endZone)
	if err != nil {
		return nil, err
	}
	return NewPeriod(start, end, RepeatType(raw.repeatType), raw.repeatPeriod, WithCapacityLimit(raw.capacityLimit))
}

func timeFromUnix(u uint64, zone string) (time.Time, error) {
	if u > maxUnix {
		return time.Time{}, fmt.Errorf("%w: %w: timestamp %d out of range", ErrInvalidPeriod, ErrPeriodBounds, u)
	}
	loc, err := parseZone(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidPeriod, err)
	}
	return time.Unix(int64(u), 0).In(loc), nil
}

type reader struct {
	buf   []byte
	order binary.ByteOrder
}

func (r *reader) payload(version uint16) (string, []rawPeriod, error) {
	name, err := r.string()
	if err != nil {
		return "", nil, err
	}
	count, ok := r.uint32()
	if !ok {
		return "", nil, fmt.Errorf("%w: truncated period count", ErrMalformed)
	}
	minSize := uint64(recordSizeV1)
	if version >= 2 {
		minSize = recordSizeV2
	}
	if uint64(count)*minSize > uint64(len(r.buf)) {
		return "", nil, fmt.Errorf("%w: period count %d exceeds data", ErrMalformed, count)
	}

	raws := make([]rawPeriod, count)
	for i := range raws {
		raw := &raws[i]
		var okStart, okEnd bool
		raw.start, okStart = r.uint64()
		raw.end, okEnd = r.uint64()
		if !okStart || !okEnd {
			return "", nil, fmt.Errorf("%w: truncated period %d", ErrMalformed, i+1)
		}
		if version >= 2 {
			if raw.startZone, err = r.string(); err != nil {
				return "", nil, err
			}
			if raw.endZone, err = r.string(); err != nil {
				return "", nil, err
			}
		}
		var okType, okPeriod, okLimit bool
		raw.repeatType, okType = r.uint16()
		raw.repeatPeriod, okPeriod = r.uint32()
		raw.capacityLimit, okLimit = r.uint64()
		if !okType || !okPeriod || !okLimit {
			return "", nil, fmt.Errorf("%w: truncated period %d", ErrMalformed, i+1)
		}
	}
	if len(r.buf) != 0 {
		return "", nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.buf))
	}
	return name, raws, nil
}

func (r *reader) uint16() (uint16, bool) {
	if len(r.buf) < 2 {
		return 0, false
	}
	v := r.order.Uint16(r.buf)
	r.buf = r.buf[2:]
	return v, true
}

func (r *reader) uint32() (uint32, bool) {
	if len(r.buf) < 4 {
		return 0, false
	}
	v := r.order.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v, true
}

func (r *reader) uint64() (uint64, bool) {
	if len(r.buf) < 8 {
		return 0, false
	}
	v := r.order.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v, true
}

func (r *reader) string() (string, error) {
	n, ok := r.uint32()
	if !ok || uint64(n) > uint64(len(r.buf)) {
		return "", fmt.Errorf("%w: truncated string", ErrMalformed)
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	if !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("%w: invalid string", ErrMalformed)
	}
	return s, nil
}

// zoneID returns a portable identifier for t's location: "UTC", an IANA
// name, or a fixed offset such as "+05:30".
func zoneID(t time.Time) string {
	loc := t.Location()
	name := loc.String()
	if loc == time.UTC || name == "UTC" {
		return "UTC"
	}
	if name != "" && name != "Local" {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	_, offset := t.Zone()
	return formatOffset(offset)
}

func formatOffset(offset int) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	h, m, s := offset/3600, offset/60%60, offset%60
	if s != 0 {
		return fmt.Sprintf("%c%02d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d:%02d", sign, h, m)
}

func parseZone(id string) (*time.Location, error) {
	switch {
	case id == "":
		return nil, fmt.Errorf("empty time zone identifier")
	case id == "UTC" || id == "Z":
		return time.UTC, nil
	case id[0] == '+' || id[0] == '-':
		offset, err := parseOffset(id)
		if err != nil {
			return nil, err
		}
		return time.FixedZone(id, offset), nil
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", id, err)
	}
	return loc, nil
}

// parseOffset accepts ±hh, ±hh:mm, ±hhmm and ±hh:mm:ss.
func parseOffset(id string) (int, error) {
	sign := 1
	if id[0] == '-' {
		sign = -1
	}
	parts := strings.Split(id[1:], ":")
	if len(parts) == 1 && len(parts[0]) == 4 {
		parts = []string{parts[0][:2], parts[0][2:]}
	}
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid time zone offset %q", id)
	}
	limits := []int{24, 59, 59}
	scale := []int{3600, 60, 1}
	total := 0
	for i, part := range parts {
		if len(part) != 2 {
			return 0, fmt.Errorf("invalid time zone offset %q", id)
		}
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("invalid time zone offset %q", id)
		}
		total += v * scale[i]
	}
	return sign * total, nil
}
