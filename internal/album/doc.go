// Package album stores named, ordered collections of cached tracks.
//
// Each album is one JSON file under <cache>/albums:
//
//	{"name": "Road trip", "description": "", "tracks": [{"id": "dQw4w9WgXcQ", "title": "...", "order": 1}]}
//
// Albums reference tracks by id only; whether a track is cached is decided
// when the album is opened.
package album
