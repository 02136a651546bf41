package main

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ADIFRecord maps upper-cased field names to values
type ADIFRecord map[string]string

// ParseADIF splits an ADIF document into records. Fields are
// <NAME:LENGTH[:TYPE]>VALUE, records end with <EOR>, and anything before
// <EOH> is header. Only a truncated field aborts parsing.
func ParseADIF(data []byte) ([]ADIFRecord, error) {
	pos := 0
	// A document that does not start with '<' has a free-text header
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] != '<' {
		eoh := indexFold(data, "<eoh>")
		if eoh < 0 {
			return nil, fmt.Errorf("adif: header without <EOH>")
		}
		pos = eoh + len("<eoh>")
	}

	var records []ADIFRecord
	current := ADIFRecord{}
	for {
		open := bytes.IndexByte(data[pos:], '<')
		if open < 0 {
			break
		}
		open += pos
		end := bytes.IndexByte(data[open:], '>')
		if end < 0 {
			return nil, fmt.Errorf("adif: unterminated tag at offset %d", open)
		}
		end += open
		tag := string(data[open+1 : end])
		pos = end + 1

		name, rest, hasLen := strings.Cut(tag, ":")
		name = strings.ToUpper(strings.TrimSpace(name))
		if !hasLen {
			switch name {
			case "EOR":
				if len(current) > 0 {
					records = append(records, current)
				}
				current = ADIFRecord{}
			case "EOH":
				// Header fields seen so far belong to the header
				current = ADIFRecord{}
			}
			continue
		}

		lenStr, _, _ := strings.Cut(rest, ":")
		n, err := strconv.Atoi(strings.TrimSpace(lenStr))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("adif: invalid length in <%s>", tag)
		}
		if n > len(data)-pos {
			return nil, fmt.Errorf("adif: field %s truncated at offset %d", name, pos)
		}
		current[name] = string(data[pos : pos+n])
		pos += n
	}

	// Tolerate a final record without <EOR>
	if len(current) > 0 {
		records = append(records, current)
	}
	return records, nil
}

func indexFold(data []byte, needle string) int {
	n := []byte(needle)
	for i := 0; i+len(n) <= len(data); i++ {
		if bytes.EqualFold(data[i:i+len(n)], n) {
			return i
		}
	}
	return -1
}
