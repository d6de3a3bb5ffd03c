package browser

// The located element and its playback flags live on window so later
// evaluations can reach canvases inside closed-over shadow roots.

const locateJS = `(excluded) => {
	const pick = () => {
		const host = document.querySelector('video-player-container');
		if (host && host.shadowRoot) {
			let best = null;
			for (const c of host.shadowRoot.querySelectorAll('canvas')) {
				const id = (c.id || '').toLowerCase();
				if (excluded.some(s => id.endsWith(s))) continue;
				if (!best || c.width * c.height > best.width * best.height) best = c;
			}
			if (best) return best;
		}
		const videos = Array.from(document.querySelectorAll('video'));
		return videos.find(v => v.readyState >= 3 && v.videoWidth > 0 && v.videoHeight > 0) || videos[0] || null;
	};
	const el = pick();
	if (!el) return null;
	const prev = window.__slidecapture;
	if (prev && prev.el === el) return { kind: el.tagName.toLowerCase(), id: el.id || '' };
	const state = { el, waiting: false };
	if (el.tagName === 'VIDEO') {
		el.addEventListener('waiting', () => { state.waiting = true; });
		el.addEventListener('playing', () => { state.waiting = false; });
	}
	window.__slidecapture = state;
	return { kind: el.tagName.toLowerCase(), id: el.id || '' };
}`

const bufferingJS = `() => {
	const s = window.__slidecapture;
	if (!s || s.el.tagName !== 'VIDEO') return false;
	return s.waiting || s.el.readyState < 3;
}`

const stoppedJS = `() => {
	const s = window.__slidecapture;
	if (!s || s.el.tagName !== 'VIDEO') return false;
	return s.el.paused || s.el.ended;
}`

const dimensionsJS = `() => {
	const s = window.__slidecapture;
	if (!s || !s.el.isConnected) return { width: 0, height: 0 };
	const el = s.el;
	return { width: el.videoWidth || el.width || 0, height: el.videoHeight || el.height || 0 };
}`

const boxJS = `() => {
	const s = window.__slidecapture;
	if (!s || !s.el.isConnected) return null;
	const r = s.el.getBoundingClientRect();
	return { left: r.left + window.scrollX, top: r.top + window.scrollY, width: r.width, height: r.height };
}`

const frameJS = `() => {
	const s = window.__slidecapture;
	if (!s || !s.el.isConnected) return null;
	const el = s.el;
	const w = el.videoWidth || el.width, h = el.videoHeight || el.height;
	if (!w || !h) return null;
	const c = s.canvas || (s.canvas = document.createElement('canvas'));
	c.width = w;
	c.height = h;
	c.getContext('2d').drawImage(el, 0, 0, w, h);
	return c.toDataURL('image/png');
}`
