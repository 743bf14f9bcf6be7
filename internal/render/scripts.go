package render

// routerPatchScript is installed before any page script runs. It patches
// the history API and listens for hash changes so client-side navigations
// land in a drainable buffer instead of being lost.
const routerPatchScript = `(() => {
  if (window.__siteCloneRoutes) return;
  window.__siteCloneRoutes = [];
  const push = (url) => {
    try {
      const u = new URL(url, window.location.href);
      if (u.origin === window.location.origin) {
        window.__siteCloneRoutes.push(u.pathname + u.search + u.hash);
      }
    } catch (e) {}
  };
  const origPush = history.pushState.bind(history);
  history.pushState = function(state, title, url) {
    if (url != null) push(url);
    return origPush(state, title, url);
  };
  const origReplace = history.replaceState.bind(history);
  history.replaceState = function(state, title, url) {
    if (url != null) push(url);
    return origReplace(state, title, url);
  };
  window.addEventListener('hashchange', () => push(window.location.href));
})();`

// drainRoutesScript empties and returns the buffered client-side routes.
const drainRoutesScript = `(() => {
  const routes = window.__siteCloneRoutes || [];
  window.__siteCloneRoutes = [];
  return routes;
})()`

// mutationProbeScript installs a MutationObserver stamping the time of the
// last DOM change. Installing twice is a no-op.
const mutationProbeScript = `(() => {
  if (window.__siteCloneLastMutation) return;
  window.__siteCloneLastMutation = Date.now();
  new MutationObserver(() => {
    window.__siteCloneLastMutation = Date.now();
  }).observe(document.documentElement, {
    childList: true, subtree: true, attributes: true, characterData: true,
  });
})();`

// quietMillisScript reports how long the DOM has been mutation-free.
const quietMillisScript = `Date.now() - (window.__siteCloneLastMutation || Date.now())`

// storageDumpScript snapshots localStorage and sessionStorage.
const storageDumpScript = `(() => {
  const dump = (s) => {
    const out = {};
    try {
      for (let i = 0; i < s.length; i++) {
        const k = s.key(i);
        out[k] = s.getItem(k);
      }
    } catch (e) {}
    return out;
  };
  return {local: dump(window.localStorage), session: dump(window.sessionStorage)};
})()`

// scrollPassScript advances one viewport and reports whether the page end
// was reached.
const scrollPassScript = `(() => {
  window.scrollBy(0, window.innerHeight);
  return (window.scrollY + window.innerHeight) >= document.body.scrollHeight;
})()`
