package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// Downgrade carries what both downgrade messages show the merchant.
type Downgrade struct {
	Shop     string
	From     string // display name of the plan being left
	To       string // display name of the requested plan
	Limit    string // e.g. "1 product"
	Affected int    // products above the new limit
	Count    int    // products unpublished by the sweep
	Deadline string
	PlansURL string
}

// GracePeriodStarted tells the merchant until when their excess products stay published.
func GracePeriodStarted(d Downgrade) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := &html{w: w}
		h.raw("<p>Hi,</p>\n<p>Your Biypod plan for <strong>")
		h.text(d.Shop)
		h.raw("</strong> is changing from ")
		h.text(d.From)
		h.raw(" to ")
		h.text(d.To)
		h.raw(". The ")
		h.text(d.To)
		h.raw(" plan includes ")
		h.text(d.Limit)
		h.raw(", and you currently have ")
		h.text(strconv.Itoa(d.Affected))
		h.raw(" more published than that.</p>\n<p>All of your products stay published until <strong>")
		h.text(d.Deadline)
		h.raw("</strong>. After that the oldest ones will be unpublished automatically so that your newest ")
		h.text(d.Limit)
		h.raw(" remain live.</p>\n<p>To keep everything published, ")
		h.link(d.PlansURL, "choose a plan")
		h.raw(" that fits your catalog.</p>\n")
		return h.err
	})
}

// ProductsUnpublished reports how many products the sweep unpublished.
func ProductsUnpublished(d Downgrade) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := &html{w: w}
		h.raw("<p>Hi,</p>\n<p>The grace period for your Biypod plan change on <strong>")
		h.text(d.Shop)
		h.raw("</strong> has ended. We unpublished ")
		h.text(strconv.Itoa(d.Count))
		h.raw(" of your oldest products to fit the ")
		h.text(d.To)
		h.raw(" plan limit of ")
		h.text(d.Limit)
		h.raw(".</p>\n<p>Nothing was deleted. ")
		h.link(d.PlansURL, "Upgrade your plan")
		h.raw(" to publish them again.</p>\n")
		return h.err
	})
}

// html writes markup and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

// text writes s escaped.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// link writes an anchor; unsafe hrefs are replaced by templ's sanitized placeholder.
func (h *html) link(href, label string) {
	h.raw(`<a href="`)
	h.text(string(templ.URL(href)))
	h.raw(`">`)
	h.text(label)
	h.raw("</a>")
}
