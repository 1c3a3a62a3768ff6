/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package sourcemap

import (
	"fmt"
	"strings"
)

// Base64 VLQ, as used by the source-map v3 "mappings" field: one
// variable-length digit per 5 bits, low end first, bit 0x20 of each
// digit set when more digits follow, sign folded into bit 0 of the
// fully-assembled value.

const b64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var b64Decode [256]int8

func init() {
	for i := range b64Decode {
		b64Decode[i] = -1
	}
	for i, c := range b64Alphabet {
		b64Decode[byte(c)] = int8(i)
	}
}

// encodeVLQ appends the base64-VLQ encoding of value to sb.
func encodeVLQ(sb *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}
	for {
		digit := v & 0x1f
		v >>= 5
		if v > 0 {
			digit |= 0x20
		}
		sb.WriteByte(b64Alphabet[digit])
		if v == 0 {
			break
		}
	}
}

// decodeVLQGroup decodes every comma-free run of base64-VLQ digits in
// group into the sequence of signed integers it encodes (1, 4 or 5
// values for a well-formed mappings segment).
func decodeVLQGroup(group string) ([]int, error) {
	var values []int
	i := 0
	for i < len(group) {
		result := 0
		shift := uint(0)
		cont := true
		for cont {
			if i >= len(group) {
				return nil, fmt.Errorf("sourcemap: truncated VLQ group %q", group)
			}
			d := b64Decode[group[i]]
			i++
			if d < 0 {
				return nil, fmt.Errorf("sourcemap: invalid base64 VLQ digit in %q", group)
			}
			digit := int(d)
			cont = digit&0x20 != 0
			digit &= 0x1f
			result += digit << shift
			shift += 5
		}
		negate := result&1 != 0
		result >>= 1
		if negate {
			result = -result
		}
		values = append(values, result)
	}
	return values, nil
}

// decodeVLQSegments decodes one ';'-separated mappings line, splitting
// it into its ','-separated segment groups, into absolute field tuples, delta-decoding each field
// against running totals per the v3 spec: [genCol], or
// [genCol, srcIdx, srcLine, srcCol] / [genCol, srcIdx, srcLine, srcCol, nameIdx].
func decodeVLQSegments(line string) ([][]int, error) {
	if line == "" {
		return nil, nil
	}
	var segments [][]int
	var genCol, srcIdx, srcLine, srcCol, nameIdx int
	for _, group := range strings.Split(line, ",") {
		if group == "" {
			continue
		}
		values, err := decodeVLQGroup(group)
		if err != nil {
			return nil, err
		}
		switch len(values) {
		case 1:
			genCol += values[0]
			segments = append(segments, []int{genCol})
		case 4:
			genCol += values[0]
			srcIdx += values[1]
			srcLine += values[2]
			srcCol += values[3]
			segments = append(segments, []int{genCol, srcIdx, srcLine, srcCol})
		case 5:
			genCol += values[0]
			srcIdx += values[1]
			srcLine += values[2]
			srcCol += values[3]
			nameIdx += values[4]
			segments = append(segments, []int{genCol, srcIdx, srcLine, srcCol, nameIdx})
		default:
			return nil, fmt.Errorf("sourcemap: malformed segment %q (%d fields)", group, len(values))
		}
	}
	return segments, nil
}

// encodeVLQSegments encodes segments (each already an absolute field
// tuple of length 1, 4 or 5) back into one ';'-line of VLQ groups,
// delta-encoding each field against running totals. Source index, source
// line/column and name index start fresh at zero, which suits a single
// isolated line; a multi-line mapping must go through encodeVLQMappings instead,
// since those fields are cumulative across the whole mapping, not
// per-line.
func encodeVLQSegments(segments [][]int) string {
	var sb strings.Builder
	var genCol, srcIdx, srcLine, srcCol, nameIdx int
	for i, seg := range segments {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeVLQ(&sb, seg[0]-genCol)
		genCol = seg[0]
		if len(seg) >= 4 {
			encodeVLQ(&sb, seg[1]-srcIdx)
			srcIdx = seg[1]
			encodeVLQ(&sb, seg[2]-srcLine)
			srcLine = seg[2]
			encodeVLQ(&sb, seg[3]-srcCol)
			srcCol = seg[3]
		}
		if len(seg) == 5 {
			encodeVLQ(&sb, seg[4]-nameIdx)
			nameIdx = seg[4]
		}
	}
	return sb.String()
}

// decodeVLQMappings decodes a full mappings string into one absolute
// field-tuple slice per ';'-separated generated line. Per the v3 spec,
// the generated-column field resets to zero at the start of every line;
// source index, source line/column and name index are cumulative deltas
// across the entire mapping and must carry forward from the last segment
// of the previous line.
func decodeVLQMappings(mappings string) ([][][]int, error) {
	rawLines := strings.Split(mappings, ";")
	lines := make([][][]int, len(rawLines))
	var srcIdx, srcLine, srcCol, nameIdx int
	for li, raw := range rawLines {
		if raw == "" {
			continue
		}
		genCol := 0
		var segments [][]int
		for _, group := range strings.Split(raw, ",") {
			if group == "" {
				continue
			}
			values, err := decodeVLQGroup(group)
			if err != nil {
				return nil, err
			}
			switch len(values) {
			case 1:
				genCol += values[0]
				segments = append(segments, []int{genCol})
			case 4:
				genCol += values[0]
				srcIdx += values[1]
				srcLine += values[2]
				srcCol += values[3]
				segments = append(segments, []int{genCol, srcIdx, srcLine, srcCol})
			case 5:
				genCol += values[0]
				srcIdx += values[1]
				srcLine += values[2]
				srcCol += values[3]
				nameIdx += values[4]
				segments = append(segments, []int{genCol, srcIdx, srcLine, srcCol, nameIdx})
			default:
				return nil, fmt.Errorf("sourcemap: malformed segment %q (%d fields)", group, len(values))
			}
		}
		lines[li] = segments
	}
	return lines, nil
}

// encodeVLQMappings is decodeVLQMappings's inverse: it encodes one
// absolute field-tuple slice per generated line back into a full mappings
// string, resetting only the generated-column field per line and
// carrying source index, source line/column and name index across the
// whole mapping.
func encodeVLQMappings(lines [][][]int) string {
	rawLines := make([]string, len(lines))
	var srcIdx, srcLine, srcCol, nameIdx int
	for li, segments := range lines {
		var sb strings.Builder
		genCol := 0
		for i, seg := range segments {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeVLQ(&sb, seg[0]-genCol)
			genCol = seg[0]
			if len(seg) >= 4 {
				encodeVLQ(&sb, seg[1]-srcIdx)
				srcIdx = seg[1]
				encodeVLQ(&sb, seg[2]-srcLine)
				srcLine = seg[2]
				encodeVLQ(&sb, seg[3]-srcCol)
				srcCol = seg[3]
			}
			if len(seg) == 5 {
				encodeVLQ(&sb, seg[4]-nameIdx)
				nameIdx = seg[4]
			}
		}
		rawLines[li] = sb.String()
	}
	return strings.Join(rawLines, ";")
}
