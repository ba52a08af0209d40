package cdpcontrol

import "encoding/json"

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }

// jsRegistry is prepended to every form script. It keeps handed-out element
// handles in window.__bankfill so later calls in the same run can find the
// element again, and reuses the handle for an element already registered.
const jsRegistry = `
var reg = window.__bankfill || (window.__bankfill = {seq: 0, nodes: {}, ids: new WeakMap()});
function _ok(data) { return JSON.stringify({ok:true,data:data}); }
function _fail(code, msg) { return JSON.stringify({ok:false,error_code:code,error_message:msg}); }
function _handle(el) {
  var id = reg.ids.get(el);
  if (!id || reg.nodes[id] !== el) {
    reg.seq += 1;
    id = "bf" + reg.seq;
    reg.ids.set(el, id);
    reg.nodes[id] = el;
  }
  return id;
}
function _node(id) {
  var el = reg.nodes[id];
  if (!el || !el.isConnected) { delete reg.nodes[id]; return null; }
  return el;
}
function _visible(el) {
  if (!el || !el.isConnected || el.getClientRects().length === 0) return false;
  var r = el.getBoundingClientRect();
  if (r.width <= 0 || r.height <= 0) return false;
  var st = window.getComputedStyle(el);
  return st.visibility !== "hidden" && st.display !== "none";
}
function _text(el) {
  return String(el.innerText || el.textContent || "").replace(/\s+/g, " ").trim();
}
`

// formScript wraps body with the registry helpers. Inside body, el is the
// element for handle, and the script fails with STALE_ELEMENT when the
// element is gone.
func formScript(handle, body string) string {
	return wrapJSEval(jsRegistry + `
var el = _node(` + jsString(handle) + `);
if (!el) return _fail("` + CodeStaleElement + `", "element is no longer attached: " + ` + jsString(handle) + `);
` + body)
}
