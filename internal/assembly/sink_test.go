package assembly

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSink_Serialize tests encoding of a document with placeholder pages
func TestSink_Serialize(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.Append(Placeholder(corruptPDF(t, "x.pdf")), Placeholder(corruptPDF(t, "y.pdf"))))

	out, err := Sink{}.Serialize(doc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(out[:5]))
	assert.Equal(t, 2, outputPageCount(t, out))

	texts := pageTexts(t, out)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "x.pdf")
	assert.Contains(t, texts[1], "y.pdf")
	assert.Contains(t, texts[1], "Thisfilemaybeencryptedorcorrupted.")
}

// TestSink_Empty tests that a document without pages is rejected
func TestSink_Empty(t *testing.T) {
	_, err := Sink{}.Serialize(NewDocument())
	assert.ErrorIs(t, err, ErrDocumentEmpty)

	_, err = Sink{}.Serialize(nil)
	assert.ErrorIs(t, err, ErrDocumentEmpty)
}

// TestSink_Consumed tests that a document serializes only once
func TestSink_Consumed(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.Append(Placeholder(corruptPDF(t, "x.pdf"))))

	_, err := Sink{}.Serialize(doc)
	require.NoError(t, err)

	_, err = Sink{}.Serialize(doc)
	assert.ErrorIs(t, err, ErrDocumentConsumed)
	assert.ErrorIs(t, doc.Append(Placeholder(corruptPDF(t, "y.pdf"))), ErrDocumentConsumed)
}

// TestSink_WriterError tests that writer failures surface as serialization errors
func TestSink_WriterError(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.Append(Placeholder(corruptPDF(t, "x.pdf"))))
	doc.pdf.SetError(errors.New("disk full"))

	_, err := Sink{}.Serialize(doc)
	assert.ErrorIs(t, err, ErrSerialization)
	var serr *SerializationError
	require.True(t, errors.As(err, &serr))
	assert.EqualError(t, serr.Err, "disk full")
}

// TestDocument_RegisterImageFailure tests that a bad image does not poison the document
func TestDocument_RegisterImageFailure(t *testing.T) {
	doc := NewDocument()
	_, err := doc.registerImage(corruptBytes, "PNG")
	require.Error(t, err)
	assert.NoError(t, doc.pdf.Error())

	require.NoError(t, doc.Append(Placeholder(corruptPDF(t, "x.pdf"))))
	out, err := Sink{}.Serialize(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, outputPageCount(t, out))
}
