// Package scraper takes read-only snapshots of a page's interactive
// elements and synthesizes minimal unique locators for them.
package scraper

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/v0xg/replaybot/internal/logging"
)

// pageProber answers uniqueness queries against the live page.
type pageProber struct {
	page *rod.Page
}

func (p pageProber) Count(xpath string) (int, error) {
	els, err := p.page.ElementsX(xpath)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// Scrape enumerates the page's textareas, inputs, buttons, labels, divs,
// selects, links and forms. Each record attempts selector synthesis;
// elements whose synthesis finds no unique match are kept without a
// selector. Individual element failures are isolated and logged, never
// fatal. The page is not mutated.
func Scrape(page *rod.Page, log *slog.Logger) (*Snapshot, error) {
	if log == nil {
		log = logging.NewNop()
	}

	urlRes, err := page.Eval(`() => window.location.href`)
	if err != nil {
		return nil, fmt.Errorf("read page url: %w", err)
	}
	titleRes, err := page.Eval(`() => document.title`)
	if err != nil {
		return nil, fmt.Errorf("read page title: %w", err)
	}

	pr := pageProber{page: page}
	snap := &Snapshot{
		URL:   urlRes.Value.String(),
		Title: titleRes.Value.String(),
	}

	snap.Textareas = scrapeTextareas(page, pr, log)
	snap.Inputs = scrapeInputs(page, pr, log)
	snap.Buttons = scrapeButtons(page, pr, log)
	snap.Labels = scrapeLabels(page, pr, log)
	snap.Divs = scrapeDivs(page, pr, log)
	snap.Selects = scrapeSelects(page, log)
	snap.Links = scrapeLinks(page, log)
	snap.Forms = scrapeForms(page, pr, log)

	log.Debug("scrape complete",
		"inputs", len(snap.Inputs),
		"textareas", len(snap.Textareas),
		"buttons", len(snap.Buttons),
		"labels", len(snap.Labels),
		"divs", len(snap.Divs),
		"selects", len(snap.Selects),
		"links", len(snap.Links),
		"forms", len(snap.Forms))

	return snap, nil
}

func scrapeInputs(page *rod.Page, pr Prober, log *slog.Logger) []Input {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('input').forEach(el => {
			try {
				out.push({
					type: el.getAttribute('type') || '',
					name: el.getAttribute('name') || '',
					id: el.id || '',
					testid: el.getAttribute('data-testid') || '',
					value: el.value || '',
					placeholder: el.getAttribute('placeholder') || '',
					required: el.required || false,
					disabled: el.disabled || false
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("input scan failed", "error", err)
		return nil
	}

	var inputs []Input
	for _, v := range res.Value.Arr() {
		in := Input{
			Type:        v.Get("type").String(),
			Name:        v.Get("name").String(),
			ID:          v.Get("id").String(),
			TestID:      v.Get("testid").String(),
			Value:       v.Get("value").String(),
			Placeholder: v.Get("placeholder").String(),
			Required:    v.Get("required").Bool(),
			Disabled:    v.Get("disabled").Bool(),
		}
		in.Selector, _ = Synthesize("input", map[string]string{
			"data-testid": in.TestID,
			"id":          in.ID,
			"name":        in.Name,
			"type":        in.Type,
		}, PriorityFor("input"), pr)
		inputs = append(inputs, in)
	}
	return inputs
}

func scrapeTextareas(page *rod.Page, pr Prober, log *slog.Logger) []Textarea {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('textarea').forEach(el => {
			try {
				out.push({
					name: el.getAttribute('name') || '',
					id: el.id || '',
					testid: el.getAttribute('data-testid') || '',
					value: el.value || '',
					placeholder: el.getAttribute('placeholder') || '',
					required: el.required || false
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("textarea scan failed", "error", err)
		return nil
	}

	var areas []Textarea
	for _, v := range res.Value.Arr() {
		ta := Textarea{
			Name:        v.Get("name").String(),
			ID:          v.Get("id").String(),
			TestID:      v.Get("testid").String(),
			Value:       v.Get("value").String(),
			Placeholder: v.Get("placeholder").String(),
			Required:    v.Get("required").Bool(),
		}
		ta.Selector, _ = Synthesize("textarea", map[string]string{
			"data-testid": ta.TestID,
			"id":          ta.ID,
			"name":        ta.Name,
		}, PriorityFor("textarea"), pr)
		areas = append(areas, ta)
	}
	return areas
}

func scrapeButtons(page *rod.Page, pr Prober, log *slog.Logger) []Button {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('button').forEach(el => {
			try {
				out.push({
					type: el.getAttribute('type') || '',
					name: el.getAttribute('name') || '',
					id: el.id || '',
					text: (el.textContent || '').trim().slice(0, 50),
					disabled: el.disabled || false
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("button scan failed", "error", err)
		return nil
	}

	var buttons []Button
	for _, v := range res.Value.Arr() {
		b := Button{
			Type:     v.Get("type").String(),
			Name:     v.Get("name").String(),
			ID:       v.Get("id").String(),
			Text:     v.Get("text").String(),
			Disabled: v.Get("disabled").Bool(),
		}
		b.Selector, _ = Synthesize("button", map[string]string{
			"id":   b.ID,
			"name": b.Name,
			"text": b.Text,
			"type": b.Type,
		}, PriorityFor("button"), pr)
		buttons = append(buttons, b)
	}
	return buttons
}

func scrapeLabels(page *rod.Page, pr Prober, log *slog.Logger) []Label {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('label').forEach(el => {
			try {
				out.push({
					id: el.id || '',
					for: el.getAttribute('for') || '',
					text: (el.textContent || '').trim().slice(0, 50)
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("label scan failed", "error", err)
		return nil
	}

	var labels []Label
	for _, v := range res.Value.Arr() {
		l := Label{
			ID:   v.Get("id").String(),
			For:  v.Get("for").String(),
			Text: v.Get("text").String(),
		}
		l.Selector, _ = Synthesize("label", map[string]string{
			"id":   l.ID,
			"text": l.Text,
		}, PriorityFor("label"), pr)
		labels = append(labels, l)
	}
	return labels
}

func scrapeDivs(page *rod.Page, pr Prober, log *slog.Logger) []Div {
	// Only divs with a developer-assigned identity are worth recording;
	// anonymous divs can never synthesize a selector anyway.
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('div').forEach(el => {
			try {
				const id = el.id || '';
				const testid = el.getAttribute('data-testid') || '';
				const role = el.getAttribute('role') || '';
				if (!id && !testid && !role) return;
				out.push({ id: id, testid: testid, role: role });
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("div scan failed", "error", err)
		return nil
	}

	var divs []Div
	for _, v := range res.Value.Arr() {
		d := Div{
			ID:     v.Get("id").String(),
			TestID: v.Get("testid").String(),
			Role:   v.Get("role").String(),
		}
		d.Selector, _ = Synthesize("div", map[string]string{
			"data-testid": d.TestID,
			"id":          d.ID,
		}, PriorityFor("div"), pr)
		divs = append(divs, d)
	}
	return divs
}

func scrapeSelects(page *rod.Page, log *slog.Logger) []Select {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('select').forEach(el => {
			try {
				const options = Array.from(el.options || []).map(o => ({
					value: o.value || '',
					text: (o.textContent || '').trim(),
					selected: o.selected || false
				}));
				out.push({
					name: el.getAttribute('name') || '',
					id: el.id || '',
					options: options
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("select scan failed", "error", err)
		return nil
	}

	var selects []Select
	for _, v := range res.Value.Arr() {
		sel := Select{
			Name: v.Get("name").String(),
			ID:   v.Get("id").String(),
		}
		for _, o := range v.Get("options").Arr() {
			sel.Options = append(sel.Options, Option{
				Value:    o.Get("value").String(),
				Text:     o.Get("text").String(),
				Selected: o.Get("selected").Bool(),
			})
		}
		selects = append(selects, sel)
	}
	return selects
}

func scrapeLinks(page *rod.Page, log *slog.Logger) []Link {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('a[href]').forEach(el => {
			try {
				const href = el.getAttribute('href') || '';
				if (href.startsWith('javascript:')) return;
				out.push({
					href: href,
					text: (el.textContent || '').trim().slice(0, 50),
					id: el.id || '',
					title: el.getAttribute('title') || ''
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("link scan failed", "error", err)
		return nil
	}

	var links []Link
	for _, v := range res.Value.Arr() {
		links = append(links, Link{
			Href:  v.Get("href").String(),
			Text:  v.Get("text").String(),
			ID:    v.Get("id").String(),
			Title: v.Get("title").String(),
		})
	}
	return links
}

func scrapeForms(page *rod.Page, pr Prober, log *slog.Logger) []Form {
	res, err := page.Eval(`() => {
		const out = [];
		document.querySelectorAll('form').forEach(el => {
			try {
				const inputs = Array.from(el.querySelectorAll('input')).map(i => ({
					type: i.getAttribute('type') || '',
					name: i.getAttribute('name') || '',
					id: i.id || '',
					testid: i.getAttribute('data-testid') || '',
					placeholder: i.getAttribute('placeholder') || '',
					required: i.required || false,
					disabled: i.disabled || false
				}));
				const buttons = Array.from(el.querySelectorAll('button')).map(b => ({
					type: b.getAttribute('type') || '',
					name: b.getAttribute('name') || '',
					id: b.id || '',
					text: (b.textContent || '').trim().slice(0, 50),
					disabled: b.disabled || false
				}));
				out.push({
					id: el.id || '',
					name: el.getAttribute('name') || '',
					action: el.getAttribute('action') || '',
					method: el.getAttribute('method') || '',
					inputs: inputs,
					buttons: buttons
				});
			} catch (e) { /* skip element */ }
		});
		return out;
	}`)
	if err != nil {
		log.Warn("form scan failed", "error", err)
		return nil
	}

	var forms []Form
	for _, v := range res.Value.Arr() {
		f := Form{
			ID:     v.Get("id").String(),
			Name:   v.Get("name").String(),
			Action: v.Get("action").String(),
			Method: v.Get("method").String(),
		}
		for _, i := range v.Get("inputs").Arr() {
			in := Input{
				Type:        i.Get("type").String(),
				Name:        i.Get("name").String(),
				ID:          i.Get("id").String(),
				TestID:      i.Get("testid").String(),
				Placeholder: i.Get("placeholder").String(),
				Required:    i.Get("required").Bool(),
				Disabled:    i.Get("disabled").Bool(),
			}
			in.Selector, _ = Synthesize("input", map[string]string{
				"data-testid": in.TestID,
				"id":          in.ID,
				"name":        in.Name,
				"type":        in.Type,
			}, PriorityFor("input"), pr)
			f.Inputs = append(f.Inputs, in)
		}
		for _, b := range v.Get("buttons").Arr() {
			bt := Button{
				Type:     b.Get("type").String(),
				Name:     b.Get("name").String(),
				ID:       b.Get("id").String(),
				Text:     b.Get("text").String(),
				Disabled: b.Get("disabled").Bool(),
			}
			bt.Selector, _ = Synthesize("button", map[string]string{
				"id":   bt.ID,
				"name": bt.Name,
				"text": bt.Text,
				"type": bt.Type,
			}, PriorityFor("button"), pr)
			f.Buttons = append(f.Buttons, bt)
		}
		forms = append(forms, f)
	}
	return forms
}
