package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the assembly category of an input file.
type Kind string

const (
	KindUnknown     Kind = ""
	KindPDF         Kind = "pdf"
	KindImage       Kind = "image"
	KindSpreadsheet Kind = "spreadsheet"
)

func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

const (
	MIMEPDF         = "application/pdf"
	MIMEXLS         = "application/vnd.ms-excel"
	MIMEXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEXLSM        = "application/vnd.ms-excel.sheet.macroEnabled.12"
	mimeOctetStream = "application/octet-stream"
	mimeImagePrefix = "image/"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	DetectedBy  string // "mime", "extension" or "magic"
	Description string
}

// Supported reports whether the file can enter an assembly queue.
func (i *FileTypeInfo) Supported() bool { return i != nil && i.Kind != KindUnknown }

var extensionKinds = map[string]Kind{
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".xls":  KindSpreadsheet,
	".xlsx": KindSpreadsheet,
	".xlsm": KindSpreadsheet,
}

var extensionMIME = map[string]string{
	".pdf":  MIMEPDF,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".xls":  MIMEXLS,
	".xlsx": MIMEXLSX,
	".xlsm": MIMEXLSM,
}

// Detector classifies intake files by declared MIME type, then file extension,
// then magic bytes.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Classify resolves the kind of a file handed over by the intake boundary.
// It returns an error only when no tier recognizes the file.
func (d *Detector) Classify(declaredMIME, fileName string, data []byte) (*FileTypeInfo, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	if kind := KindFromMIME(declaredMIME); kind != KindUnknown {
		info := &FileTypeInfo{MIMEType: normalizeMIME(declaredMIME), Extension: ext, Kind: kind, DetectedBy: "mime"}
		d.describe(info)
		return info, nil
	}

	if kind, ok := extensionKinds[ext]; ok {
		info := &FileTypeInfo{MIMEType: extensionMIME[ext], Extension: ext, Kind: kind, DetectedBy: "extension"}
		d.describe(info)
		log.Debug().Str("file", fileName).Str("declared_mime", declaredMIME).Str("kind", kind.String()).Msg("classified by extension")
		return info, nil
	}

	if len(data) > 0 {
		info := d.Detect(data, ext)
		if info.Supported() {
			log.Debug().Str("file", fileName).Str("mime", info.MIMEType).Str("kind", info.Kind.String()).Msg("classified by magic bytes")
			return info, nil
		}
	}

	return nil, fmt.Errorf("unsupported file type: mime=%q name=%q", declaredMIME, fileName)
}

// Detect detects the actual file type using magic bytes, not filename.
// ext is only consulted to disambiguate ZIP and OLE containers.
func (d *Detector) Detect(data []byte, ext string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	extension := mtype.Extension()

	log.Debug().Str("mime", mimeType).Str("ext", extension).Msg("detected file type")

	// Modern Office formats are ZIP files with a specific structure
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		switch ext {
		case ".xlsx":
			mimeType, extension = MIMEXLSX, ".xlsx"
		case ".xlsm":
			mimeType, extension = MIMEXLSM, ".xlsm"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}
	}

	// Legacy .xls is detected as application/x-ole-storage or application/x-cfb
	if (mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb") && ext == ".xls" {
		mimeType, extension = MIMEXLS, ".xls"
	}

	info := &FileTypeInfo{
		MIMEType:   normalizeMIME(mimeType),
		Extension:  extension,
		Kind:       KindFromMIME(mimeType),
		DetectedBy: "magic",
	}
	d.describe(info)
	return info
}

// KindFromMIME maps a MIME type to its kind, ignoring parameters such as charset.
func KindFromMIME(mimeType string) Kind {
	m := normalizeMIME(mimeType)
	switch {
	case m == "" || m == mimeOctetStream:
		return KindUnknown
	case m == MIMEPDF:
		return KindPDF
	case strings.HasPrefix(m, mimeImagePrefix):
		return KindImage
	case m == MIMEXLS, m == MIMEXLSX, m == strings.ToLower(MIMEXLSM):
		return KindSpreadsheet
	default:
		return KindUnknown
	}
}

func normalizeMIME(m string) string {
	if i := strings.Index(m, ";"); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// describe sets a human readable description for the detected kind
func (d *Detector) describe(info *FileTypeInfo) {
	switch info.Kind {
	case KindPDF:
		info.Description = "PDF document"
	case KindImage:
		info.Description = "Image file"
	case KindSpreadsheet:
		info.Description = "Microsoft Excel spreadsheet"
		if info.MIMEType == MIMEXLS {
			info.Description = "Microsoft Excel spreadsheet (legacy)"
		}
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
