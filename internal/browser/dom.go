package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type evalFunc func(ctx context.Context, js string, res any) error

// WaitState is the element condition WaitFor blocks on
type WaitState int

const (
	WaitAttached WaitState = iota
	WaitVisible
	WaitHidden
)

func (s WaitState) String() string {
	switch s {
	case WaitVisible:
		return "visible"
	case WaitHidden:
		return "hidden"
	default:
		return "attached"
	}
}

const pollInterval = 100 * time.Millisecond

// jsPrelude resolves selectors in the content frame first and the top
// document second. %s is the JSON-quoted frame selector.
const jsPrelude = `
var __frameSel = %s;
function __docs() {
	var docs = [];
	if (__frameSel) {
		var f = document.querySelector(__frameSel);
		if (f) { try { if (f.contentDocument) docs.push(f.contentDocument); } catch (e) {} }
	}
	docs.push(document);
	return docs;
}
function __find(sel) {
	var docs = __docs();
	for (var i = 0; i < docs.length; i++) {
		var el = docs[i].querySelector(sel);
		if (el) return el;
	}
	return null;
}
function __visible(el) {
	if (!el) return false;
	var view = el.ownerDocument.defaultView || window;
	var st = view.getComputedStyle(el);
	if (st.display === 'none' || st.visibility === 'hidden') return false;
	var r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}
`

const (
	jsFrameReady = `function() {
	if (document.readyState !== 'complete') return false;
	if (!__frameSel) return true;
	var f = document.querySelector(__frameSel);
	if (!f) return true;
	try {
		var d = f.contentDocument;
		return !!d && d.readyState === 'complete';
	} catch (e) { return true; }
}`

	jsOuterHTML = `function() { return __docs()[0].documentElement.outerHTML; }`

	jsWait = `function(sel, state) {
	var el = __find(sel);
	if (state === 'attached') return !!el;
	if (state === 'visible') return __visible(el);
	return !__visible(el);
}`

	jsVisible = `function(sel) { return __visible(__find(sel)); }`

	jsClick = `function(sel) {
	var el = __find(sel);
	if (!el) return false;
	if (el.scrollIntoView) el.scrollIntoView({block: 'center'});
	el.click();
	return true;
}`

	// jsClickNearest clicks the target child of the closest container
	// enclosing sel
	jsClickNearest = `function(sel, container, target) {
	var el = __find(sel);
	if (!el) return false;
	var box = el.closest(container);
	if (!box) return false;
	for (var i = 0; i < box.children.length; i++) {
		var c = box.children[i];
		if (c.matches(target)) {
			if (c.scrollIntoView) c.scrollIntoView({block: 'center'});
			c.click();
			return true;
		}
	}
	return false;
}`

	jsFill = `function(sel, val) {
	var el = __find(sel);
	if (!el) return false;
	el.focus();
	el.value = val;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

	jsSetChecked = `function(sel, want) {
	var el = __find(sel);
	if (!el) return false;
	if (el.checked !== (want === 'true')) el.click();
	return true;
}`

	jsText = `function(sel) {
	var el = __find(sel);
	if (!el) return null;
	return (el.innerText || el.textContent || '').trim();
}`

	jsValue = `function(sel) {
	var el = __find(sel);
	if (!el) return null;
	return el.value === undefined ? null : String(el.value);
}`

	// jsClickVisible clicks the first visible match, reporting whether one
	// existed
	jsClickVisible = `function(sel) {
	var docs = __docs();
	for (var i = 0; i < docs.length; i++) {
		var els = docs[i].querySelectorAll(sel);
		for (var j = 0; j < els.length; j++) {
			if (__visible(els[j])) { els[j].click(); return true; }
		}
	}
	return false;
}`
)

// script wraps fn with the prelude and applies it to the JSON-quoted args
func (b *Browser) script(fn string, args ...string) string {
	return buildScript(b.config.FrameSelector, fn, args...)
}

func buildScript(frameSel, fn string, args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = jsString(a)
	}
	return fmt.Sprintf("(function() {%s\nreturn (%s)(%s);\n})()",
		fmt.Sprintf(jsPrelude, jsString(frameSel)), fn, strings.Join(quoted, ", "))
}

func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// poll evaluates js until it yields true or ctx ends
func (b *Browser) poll(ctx context.Context, js string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var ok bool
		if err := b.eval(ctx, js, &ok); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitFor blocks until the element matching sel reaches state
func (b *Browser) WaitFor(ctx context.Context, sel string, state WaitState) error {
	return b.op(ctx, fmt.Sprintf("wait for %s %s", sel, state), func(opCtx context.Context) error {
		return b.poll(opCtx, b.script(jsWait, sel, state.String()))
	})
}

// Visible reports whether sel currently matches a rendered element
func (b *Browser) Visible(ctx context.Context, sel string) (bool, error) {
	var visible bool
	err := b.op(ctx, "check "+sel, func(opCtx context.Context) error {
		return b.eval(opCtx, b.script(jsVisible, sel), &visible)
	})
	return visible, err
}

// Click waits for sel, clicks it, then lets the page settle
func (b *Browser) Click(ctx context.Context, sel string) error {
	return b.op(ctx, "click "+sel, func(opCtx context.Context) error {
		if err := b.act(opCtx, sel, jsClick); err != nil {
			return err
		}
		return b.settle(opCtx)
	})
}

// ClickNearest clicks the target child of the closest container enclosing
// the element matching sel, such as the legend of the fieldset nearest to a
// form control.
func (b *Browser) ClickNearest(ctx context.Context, sel, container, target string) error {
	return b.op(ctx, "click "+target+" near "+sel, func(opCtx context.Context) error {
		if err := b.act(opCtx, sel, jsClickNearest, container, target); err != nil {
			return err
		}
		return b.settle(opCtx)
	})
}

// Fill replaces the value of the form control matching sel
func (b *Browser) Fill(ctx context.Context, sel, value string) error {
	return b.op(ctx, "fill "+sel, func(opCtx context.Context) error {
		return b.act(opCtx, sel, jsFill, value)
	})
}

// SetChecked clicks the checkbox matching sel if its state differs
func (b *Browser) SetChecked(ctx context.Context, sel string, checked bool) error {
	return b.op(ctx, "check "+sel, func(opCtx context.Context) error {
		return b.act(opCtx, sel, jsSetChecked, fmt.Sprint(checked))
	})
}

// ReadText returns the rendered text of the element matching sel
func (b *Browser) ReadText(ctx context.Context, sel string) (string, error) {
	return b.read(ctx, sel, jsText)
}

// ReadValue returns the current value of the form control matching sel
func (b *Browser) ReadValue(ctx context.Context, sel string) (string, error) {
	return b.read(ctx, sel, jsValue)
}

// act waits for sel to attach, then runs an action script that reports
// whether it found the element.
func (b *Browser) act(ctx context.Context, sel, fn string, args ...string) error {
	if err := b.poll(ctx, b.script(jsWait, sel, WaitAttached.String())); err != nil {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	var found bool
	if err := b.eval(ctx, b.script(fn, append([]string{sel}, args...)...), &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return nil
}

func (b *Browser) read(ctx context.Context, sel, fn string) (string, error) {
	var out *string
	err := b.op(ctx, "read "+sel, func(opCtx context.Context) error {
		if err := b.poll(opCtx, b.script(jsWait, sel, WaitAttached.String())); err != nil {
			return err
		}
		return b.eval(opCtx, b.script(fn, sel), &out)
	})
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return *out, nil
}
