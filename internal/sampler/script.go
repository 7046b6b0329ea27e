package sampler

// extractionScript runs in the page and returns a RawSignals-shaped object.
// Colors are reported exactly as getComputedStyle serializes them.
const extractionScript = `(() => {
  const limit = 2000;
  const fg = new Map();
  const bg = new Map();
  const bump = (m, k) => { if (k) m.set(k, (m.get(k) || 0) + 1); };
  const visible = (cs) => cs.display !== 'none' && cs.visibility !== 'hidden' && cs.opacity !== '0';

  const nodes = [document.body, ...document.querySelectorAll('body *')];
  let seen = 0;
  for (const el of nodes) {
    if (!el || seen >= limit) break;
    seen++;
    const cs = getComputedStyle(el);
    if (!visible(cs)) continue;
    if (el.childElementCount === 0 && (el.textContent || '').trim() !== '') bump(fg, cs.color);
    bump(bg, cs.backgroundColor);
  }

  const font = (el) => {
    if (!el) return {};
    const cs = getComputedStyle(el);
    return { family: cs.fontFamily, weight: cs.fontWeight, size: cs.fontSize };
  };
  const first = (selector) => {
    for (const el of document.querySelectorAll(selector)) {
      if (visible(getComputedStyle(el))) return el;
    }
    return null;
  };

  const heading = first('h1, h2, h3');
  const control = first('button, [role="button"], a.btn, a.button, .btn, input[type="submit"]');
  const surface = Array.from(document.querySelectorAll(
    '.card, .modal, [class*="card"], [class*="modal"], [role="dialog"], dialog, article'
  )).slice(0, 200).find((el) => getComputedStyle(el).boxShadow !== 'none');
  const bordered = control || surface;

  const controlStyle = control ? getComputedStyle(control) : null;
  const borderStyle = bordered ? getComputedStyle(bordered) : null;
  const toList = (m) => Array.from(m, ([color, count]) => ({ color, count })).slice(0, 500);

  return {
    title: (document.title || '').slice(0, 256),
    foreground: toList(fg),
    background: toList(bg),
    body: font(document.body),
    heading: font(heading),
    radius: controlStyle ? controlStyle.borderRadius : '',
    padding: controlStyle ? controlStyle.paddingTop + ' ' + controlStyle.paddingLeft : '',
    shadow: surface ? getComputedStyle(surface).boxShadow : '',
    border_width: borderStyle ? borderStyle.borderTopWidth : '',
    border_style: borderStyle ? borderStyle.borderTopStyle : ''
  };
})()`
