// internal/browser/scripts.go
package browser

// handleAttr is the DOM attribute used to tag queried candidates. Every query
// clears the previous generation's tags, so a handle from an earlier query
// resolves to nothing once the page has been re-scanned.
const handleAttr = "data-autoapply-handle"

// queryCandidatesJS tags every button-like element and returns its
// description. Visibility means the node has a rendering box and is not hidden
// by style; enabled means neither the disabled property nor aria-disabled is set.
const queryCandidatesJS = `(() => {
	const attr = '` + handleAttr + `';
	document.querySelectorAll('[' + attr + ']').forEach(n => n.removeAttribute(attr));
	window.__autoapplyGeneration = (window.__autoapplyGeneration || 0) + 1;
	const gen = window.__autoapplyGeneration;
	const nodes = document.querySelectorAll('button, a, [role="button"], input[type="button"], input[type="submit"]');
	const out = [];
	let i = 0;
	for (const n of nodes) {
		const rect = n.getBoundingClientRect();
		const style = window.getComputedStyle(n);
		const visible = n.getClientRects().length > 0 && rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		const disabled = n.disabled === true || n.getAttribute('aria-disabled') === 'true';
		const handle = gen + ':' + (i++);
		n.setAttribute(attr, handle);
		const text = (n.innerText || n.value || n.getAttribute('aria-label') || '').trim();
		const dialog = n.closest('[role="dialog"], [role="alertdialog"], dialog, [aria-modal="true"], .modal');
		out.push({
			handle: handle,
			text: text,
			tag: n.tagName.toLowerCase(),
			role: n.getAttribute('role') || '',
			visible: visible,
			enabled: !disabled,
			in_dialog: dialog !== null,
		});
	}
	return out;
})()`

// locateHandleJS scrolls the tagged node into view and returns the center of
// its box in viewport coordinates, or null when the handle is stale.
const locateHandleJS = `((handle) => {
	const node = document.querySelector('[` + handleAttr + `="' + CSS.escape(handle) + '"]');
	if (!node || !node.isConnected) return null;
	node.scrollIntoView({block: 'center', inline: 'center'});
	const rect = node.getBoundingClientRect();
	if (rect.width <= 0 || rect.height <= 0) return null;
	return {x: rect.left + rect.width / 2, y: rect.top + rect.height / 2};
})(%s)`

// scrollByJS scrolls by a fraction of the viewport height.
const scrollByJS = `(() => { window.scrollBy(0, Math.floor(window.innerHeight * %f)); return true; })()`

// contentExtentJS returns the total scrollable height of the document.
const contentExtentJS = `Math.max(
	document.body ? document.body.scrollHeight : 0,
	document.documentElement ? document.documentElement.scrollHeight : 0
)`

// bodyTextJS returns the rendered text of the document body.
const bodyTextJS = `document.body ? document.body.innerText : ''`

// fingerprintJS returns the inputs for a surface fingerprint.
const fingerprintJS = `location.href + '\n' + (document.body ? document.body.innerText : '')`
