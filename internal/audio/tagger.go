package audio

import (
	"os"
	"strconv"

	"github.com/bogem/id3v2"

	"github.com/yplay/yplay/internal/model"
)

// TagEditAction defines how to handle individual ID3 tags.
type TagEditAction int

const (
	// TagEmpty clears the tag value.
	TagEmpty TagEditAction = iota

	// TagModify updates the tag with the track's metadata.
	TagModify

	// TagDoNotModify leaves the existing tag value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags:  true,
//	    TrackTitle:  TagModify,      // video title
//	    Artist:      TagModify,      // channel name
//	    AlbumArtist: TagDoNotModify, // keep whatever yt-dlp embedded
//	    Length:      TagModify,      // TLEN from the duration
//	    Comments:    TagModify,      // source URL
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no text tags are modified.
	ModifyTags bool

	// TrackTitle controls the TIT2 (Title) frame.
	TrackTitle TagEditAction

	// Artist controls the TPE1 (Lead artist) frame, set from the uploader.
	Artist TagEditAction

	// AlbumArtist controls the TPE2 (Album artist) frame.
	AlbumArtist TagEditAction

	// Length controls the TLEN (Length in ms) frame.
	Length TagEditAction

	// Comments controls the COMM frame, which carries the source URL.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration: everything is
// modified except the album artist.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:  true,
		TrackTitle:  TagModify,
		Artist:      TagModify,
		AlbumArtist: TagDoNotModify,
		Length:      TagModify,
		Comments:    TagModify,
	}
}

// Tagger writes ID3 tags to MP3 files.
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//	err := tagger.Tag(stagedPath, info, artworkBytes)
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// Tag writes the track's metadata, and artwork when non-nil, into the mp3
// at path.
func (t *Tagger) Tag(path string, info model.TrackInfo, artwork []byte) error {
	tag, err := open(path)
	if err != nil {
		return err
	}
	defer tag.Close()

	if t.config.ModifyTags {
		t.updateStringTags(tag, info)
	}
	if artwork != nil {
		t.updateArtwork(tag, artwork)
	}
	return tag.Save()
}

// SetTitle rewrites only the title frame.
func (t *Tagger) SetTitle(path, title string) error {
	tag, err := open(path)
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetTitle(title)
	return tag.Save()
}

func open(path string) (*id3v2.Tag, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return id3v2.Open(path, id3v2.Options{Parse: true})
}

// updateStringTags updates text-based ID3 frames based on configuration.
func (t *Tagger) updateStringTags(tag *id3v2.Tag, info model.TrackInfo) {
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	// Title (TIT2)
	switch t.config.TrackTitle {
	case TagEmpty:
		tag.SetTitle("")
	case TagModify:
		tag.SetTitle(info.DisplayTitle())
	}

	// Artist (TPE1)
	switch t.config.Artist {
	case TagEmpty:
		tag.SetArtist("")
	case TagModify:
		if info.Uploader != "" {
			tag.SetArtist(info.Uploader)
		}
	}

	// Album Artist (TPE2)
	switch t.config.AlbumArtist {
	case TagEmpty:
		tag.DeleteFrames("TPE2")
	case TagModify:
		if info.Uploader != "" {
			tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, info.Uploader)
		}
	}

	// Length (TLEN), milliseconds
	switch t.config.Length {
	case TagEmpty:
		tag.DeleteFrames("TLEN")
	case TagModify:
		if info.Duration != nil {
			tag.AddTextFrame("TLEN", id3v2.EncodingUTF8, strconv.Itoa(*info.Duration*1000))
		}
	}

	// Comments (COMM)
	switch t.config.Comments {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Comments"))
	case TagModify:
		tag.DeleteFrames(tag.CommonID("Comments"))
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        info.SourceURL(),
		})
	}
}

// updateArtwork embeds cover art as an attached picture frame.
func (t *Tagger) updateArtwork(tag *id3v2.Tag, artwork []byte) {
	// Remove any existing cover pictures
	tag.DeleteFrames(tag.CommonID("Attached picture"))

	// Add new artwork as front cover (APIC frame)
	pic := id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     artwork,
	}
	tag.AddAttachedPicture(pic)
}
