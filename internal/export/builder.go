package export

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/bookbaker/internal/book"
)

// builder assembles an ePub 3.0 archive from a book tree. One XHTML file
// is written per chapter, with an intro page when the book carries a
// description.
type builder struct {
	book          *book.Book
	lang          string
	cover         []byte
	coverType     string
	chapterCovers map[int]coverImage
}

type coverImage struct {
	data      []byte
	mediaType string
}

func newBuilder(b *book.Book, lang string) *builder {
	if lang == "" {
		lang = "en"
	}
	return &builder{book: b, lang: strings.ToLower(lang), chapterCovers: make(map[int]coverImage)}
}

func (b *builder) setCover(data []byte, mediaType string) {
	b.cover = data
	b.coverType = mediaType
}

// setChapterCover attaches an image to the chapter at index i. It is
// rendered at the top of the chapter page.
func (b *builder) setChapterCover(i int, data []byte, mediaType string) {
	b.chapterCovers[i] = coverImage{data: data, mediaType: mediaType}
}

// writeTo writes the complete archive. The mimetype entry must come first
// and uncompressed per the ePub container spec.
func (b *builder) writeTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := b.writeMimetype(zw); err != nil {
		return err
	}
	if err := writeEntry(zw, "META-INF/container.xml", containerXML); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/content.opf", b.generatePackage()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/nav.xhtml", b.generateNavigation()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/toc.ncx", b.generateNCX()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/styles/style.css", defaultStylesheet); err != nil {
		return err
	}
	if b.cover != nil {
		if err := b.writeCover(zw); err != nil {
			return err
		}
	}
	if b.book.Description != "" {
		body := "<h1>" + escapeXML(b.title()) + "</h1>\n<p>" + b.description() + "</p>"
		if err := writeEntry(zw, "OEBPS/chapters/intro.xhtml", xhtmlDoc("Introduction", body)); err != nil {
			return err
		}
	}
	for i, ch := range b.book.Chapters {
		if img, ok := b.chapterCovers[i]; ok {
			w, err := zw.Create("OEBPS/images/" + chapterID(i) + "_cover" + coverExt(img.mediaType))
			if err != nil {
				return fmt.Errorf("failed to create chapter cover entry: %w", err)
			}
			if _, err := w.Write(img.data); err != nil {
				return err
			}
		}
		name := fmt.Sprintf("OEBPS/chapters/%s.xhtml", chapterID(i))
		body := ch.HTML()
		if img, ok := b.chapterCovers[i]; ok {
			body = fmt.Sprintf("<img src=\"../images/%s_cover%s\" alt=\"%s\"/>\n",
				chapterID(i), coverExt(img.mediaType), escapeXML(chapterTitle(ch))) + body
		}
		if err := writeEntry(zw, name, xhtmlDoc(chapterTitle(ch), body)); err != nil {
			return fmt.Errorf("failed to write chapter %q: %w", ch.Title, err)
		}
	}
	return nil
}

func (b *builder) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

func (b *builder) writeCover(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/images/cover" + coverExt(b.coverType))
	if err != nil {
		return fmt.Errorf("failed to create cover entry: %w", err)
	}
	_, err = w.Write(b.cover)
	return err
}

func writeEntry(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = w.Write([]byte(content))
	return err
}

func (b *builder) title() string {
	if b.book.TitleTranslated != nil && *b.book.TitleTranslated != "" {
		return *b.book.TitleTranslated
	}
	return b.book.Title
}

func (b *builder) description() string {
	if b.book.DescriptionTranslated != nil && *b.book.DescriptionTranslated != "" {
		return *b.book.DescriptionTranslated
	}
	return b.book.Description
}

func chapterTitle(ch *book.Chapter) string {
	if ch.TitleTranslated != nil && *ch.TitleTranslated != "" {
		return *ch.TitleTranslated
	}
	return ch.Title
}

func chapterID(i int) string {
	return fmt.Sprintf("ch_%03d", i+1)
}

// identifier derives a stable publication ID from the book's store
// identity so re-exports replace rather than duplicate in readers.
func (b *builder) identifier() string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.book.Title+"\x00"+b.book.Author))
	return "urn:uuid:" + id.String()
}

// generatePackage creates the content.opf package document.
func (b *builder) generatePackage() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	sb.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", b.identifier()))
	sb.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", escapeXML(b.title())))
	sb.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", escapeXML(b.book.Author)))
	sb.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", b.lang))
	for _, tag := range b.book.Tags {
		sb.WriteString(fmt.Sprintf("    <dc:subject>%s</dc:subject>\n", escapeXML(tag)))
	}
	sb.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z")))
	if b.cover != nil {
		sb.WriteString("    <meta name=\"cover\" content=\"cover-image\"/>\n")
	}
	sb.WriteString("  </metadata>\n\n")

	sb.WriteString("  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"style\" href=\"styles/style.css\" media-type=\"text/css\"/>\n")
	if b.cover != nil {
		sb.WriteString(fmt.Sprintf("    <item id=\"cover-image\" href=\"images/cover%s\" media-type=\"%s\" properties=\"cover-image\"/>\n",
			coverExt(b.coverType), b.coverType))
	}
	if b.book.Description != "" {
		sb.WriteString("    <item id=\"intro\" href=\"chapters/intro.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
	}
	for i := range b.book.Chapters {
		id := chapterID(i)
		if img, ok := b.chapterCovers[i]; ok {
			sb.WriteString(fmt.Sprintf("    <item id=\"%s-cover\" href=\"images/%s_cover%s\" media-type=\"%s\"/>\n",
				id, id, coverExt(img.mediaType), img.mediaType))
		}
		sb.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"chapters/%s.xhtml\" media-type=\"application/xhtml+xml\"/>\n", id, id))
	}
	sb.WriteString("  </manifest>\n\n")

	sb.WriteString("  <spine toc=\"ncx\">\n")
	if b.book.Description != "" {
		sb.WriteString("    <itemref idref=\"intro\"/>\n")
	}
	for i := range b.book.Chapters {
		sb.WriteString(fmt.Sprintf("    <itemref idref=\"%s\"/>\n", chapterID(i)))
	}
	sb.WriteString("  </spine>\n")
	sb.WriteString("</package>\n")

	return sb.String()
}

// generateNavigation creates the nav.xhtml navigation document.
func (b *builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="styles/style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)
	if b.book.Description != "" {
		sb.WriteString("      <li><a href=\"chapters/intro.xhtml\">Introduction</a></li>\n")
	}
	for i, ch := range b.book.Chapters {
		sb.WriteString(fmt.Sprintf("      <li><a href=\"chapters/%s.xhtml\">%s</a></li>\n",
			chapterID(i), escapeXML(chapterTitle(ch))))
	}
	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)
	return sb.String()
}

// generateNCX creates the toc.ncx for ePub 2 compatibility.
func (b *builder) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="`)
	sb.WriteString(b.identifier())
	sb.WriteString(`"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle>
    <text>`)
	sb.WriteString(escapeXML(b.title()))
	sb.WriteString(`</text>
  </docTitle>
  <navMap>
`)
	order := 1
	if b.book.Description != "" {
		sb.WriteString(fmt.Sprintf("    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", order, order))
		sb.WriteString("      <navLabel><text>Introduction</text></navLabel>\n")
		sb.WriteString("      <content src=\"chapters/intro.xhtml\"/>\n")
		sb.WriteString("    </navPoint>\n")
		order++
	}
	for i, ch := range b.book.Chapters {
		sb.WriteString(fmt.Sprintf("    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", order, order))
		sb.WriteString(fmt.Sprintf("      <navLabel><text>%s</text></navLabel>\n", escapeXML(chapterTitle(ch))))
		sb.WriteString(fmt.Sprintf("      <content src=\"chapters/%s.xhtml\"/>\n", chapterID(i)))
		sb.WriteString("    </navPoint>\n")
		order++
	}
	sb.WriteString(`  </navMap>
</ncx>
`)
	return sb.String()
}

func xhtmlDoc(title, body string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	sb.WriteString(escapeXML(title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="../styles/style.css"/>
</head>
<body>
`)
	sb.WriteString(body)
	sb.WriteString(`
</body>
</html>
`)
	return sb.String()
}

func coverExt(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const defaultStylesheet = `body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
  text-align: justify;
}

h1, h2, h3 {
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
  text-align: left;
}

h1 {
  font-size: 1.8em;
  border-bottom: 1px solid #ccc;
  padding-bottom: 0.3em;
}

h2 {
  font-size: 1.4em;
}

h3 {
  font-size: 1.2em;
}

p {
  margin: 0.5em 0;
}

ruby rt {
  font-size: 0.5em;
}
`
