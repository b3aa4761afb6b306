package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText(t *testing.T) {
	page := `<html><head><style>p { color: red }</style></head><body>
<script>var closing = "01/01/2030";</script>
<p>Closing&nbsp;Date: <b>28 February 2025</b></p>
<noscript>Enable JavaScript</noscript>
</body></html>`

	assert.Equal(t, "Closing Date: 28 February 2025", HTMLToText(page))
	assert.Equal(t, "", HTMLToText(""))
}
