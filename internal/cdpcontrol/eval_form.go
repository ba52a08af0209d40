package cdpcontrol

// Page-side helpers for synthetic input. Values go through the native setter
// so frameworks that track the value property observe the change.
const jsInputHelpers = `
function _setNative(el, value) {
  var proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  var desc = Object.getOwnPropertyDescriptor(proto, "value");
  if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
}
function _fire(el, type, init) {
  var opts = Object.assign({bubbles: true, cancelable: true, composed: true}, init || {});
  var ev;
  if (type.indexOf("key") === 0) ev = new KeyboardEvent(type, opts);
  else if (type.indexOf("pointer") === 0) ev = new PointerEvent(type, opts);
  else if (type.indexOf("mouse") === 0 || type === "click") ev = new MouseEvent(type, opts);
  else if (type === "input") ev = new InputEvent(type, opts);
  else ev = new Event(type, opts);
  el.dispatchEvent(ev);
}
function _pointerSequence(el) {
  var r = el.getBoundingClientRect();
  var at = {clientX: r.left + r.width / 2, clientY: r.top + r.height / 2, button: 0, view: window};
  _fire(el, "pointerdown", Object.assign({pointerType: "mouse", isPrimary: true, buttons: 1}, at));
  _fire(el, "mousedown", Object.assign({buttons: 1}, at));
  _fire(el, "pointerup", Object.assign({pointerType: "mouse", isPrimary: true}, at));
  _fire(el, "mouseup", at);
  _fire(el, "click", at);
}
`

// jsProbe lists every element matched by a CSS selector list or an XPath
// expression. Hidden elements are reported without a handle.
func jsProbe(kind, expr string) string {
	return wrapJSEval(jsRegistry + `
var kind = ` + jsString(kind) + `;
var expr = ` + jsString(expr) + `;
var found = [];
if (kind === "xpath") {
  var snap = document.evaluate(expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  for (var i = 0; i < snap.snapshotLength; i++) found.push(snap.snapshotItem(i));
} else {
  found = Array.prototype.slice.call(document.querySelectorAll(expr));
}
var nodes = [];
for (var j = 0; j < found.length; j++) {
  var el = found[j];
  if (!el || el.nodeType !== 1) continue;
  var vis = _visible(el);
  nodes.push({handle: vis ? _handle(el) : "", visible: vis, text: _text(el).substring(0, 300)});
}
return _ok({nodes: nodes});`)
}

// jsFindText returns, in document order, the text of each element that owns
// a text node containing phrase. Ancestors of that element are not reported,
// so the page body never stands in for the balance line.
func jsFindText(phrase string) string {
	return wrapJSEval(jsRegistry + `
var needle = ` + jsString(phrase) + `.toLowerCase();
var texts = [];
var seen = new Set();
if (document.body && needle) {
  var walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
  while (walker.nextNode()) {
    var node = walker.currentNode;
    if (String(node.data).toLowerCase().indexOf(needle) === -1) continue;
    var parent = node.parentElement;
    if (!parent || seen.has(parent)) continue;
    var tag = parent.tagName;
    if (tag === "SCRIPT" || tag === "STYLE" || tag === "NOSCRIPT" || tag === "TEMPLATE") continue;
    seen.add(parent);
    texts.push(_text(parent).substring(0, 500));
  }
}
return _ok({texts: texts});`)
}

func jsFocus(handle string, pointer bool) string {
	return formScript(handle, jsInputHelpers+`
el.scrollIntoView({block: "center", inline: "nearest"});
if (`+jsJSON(pointer)+`) _pointerSequence(el);
el.focus();
return _ok({focused: document.activeElement === el});`)
}

func jsClear(handle string) string {
	return formScript(handle, jsInputHelpers+`
_setNative(el, "");
_fire(el, "input", {inputType: "deleteContentBackward"});
return _ok({value: el.value});`)
}

func jsKeystroke(handle, ch string) string {
	return formScript(handle, jsInputHelpers+`
var ch = `+jsString(ch)+`;
_setNative(el, String(el.value || "") + ch);
_fire(el, "keydown", {key: ch});
_fire(el, "input", {data: ch, inputType: "insertText"});
_fire(el, "keyup", {key: ch});
return _ok({value: el.value});`)
}

func jsCommit(handle string) string {
	return formScript(handle, jsInputHelpers+`
_fire(el, "change");
return _ok({value: el.value});`)
}

func jsSetValue(handle, text string) string {
	return formScript(handle, jsInputHelpers+`
el.scrollIntoView({block: "center", inline: "nearest"});
el.focus();
_setNative(el, `+jsString(text)+`);
_fire(el, "input", {inputType: "insertReplacementText"});
_fire(el, "change");
return _ok({value: el.value});`)
}

// jsSelectAll focuses the element and selects its contents so trusted text
// insertion replaces them.
func jsSelectAll(handle string) string {
	return formScript(handle, `
el.scrollIntoView({block: "center", inline: "nearest"});
el.focus();
if (typeof el.select === "function") el.select();
return _ok({focused: document.activeElement === el});`)
}

func jsPointerClick(handle string) string {
	return formScript(handle, jsInputHelpers+`
el.scrollIntoView({block: "center", inline: "nearest"});
_pointerSequence(el);
return _ok({clicked: true});`)
}

// jsCenter scrolls the element into view and reports its centre in viewport
// coordinates once layout has settled for a frame.
func jsCenter(handle string) string {
	return wrapJSEvalAsync(jsRegistry + `
var el = _node(` + jsString(handle) + `);
if (!el) return _fail("` + CodeStaleElement + `", "element is no longer attached: " + ` + jsString(handle) + `);
el.scrollIntoView({block: "center", inline: "nearest"});
await new Promise(function(resolve) { requestAnimationFrame(function() { resolve(); }); });
var r = el.getBoundingClientRect();
if (r.width <= 0 || r.height <= 0) return _fail("` + CodeStaleElement + `", "element has no layout");
return _ok({x: r.left + r.width / 2, y: r.top + r.height / 2});`)
}

func jsRelease(handles []string) string {
	return wrapJSEval(jsRegistry + `
var ids = ` + jsJSON(handles) + `;
for (var i = 0; i < ids.length; i++) {
  var el = reg.nodes[ids[i]];
  if (el) reg.ids.delete(el);
  delete reg.nodes[ids[i]];
}
return _ok({released: ids.length});`)
}

func jsLocation() string {
	return wrapJSEval(`return JSON.stringify({ok:true,data:{href:String(location.href)}});`)
}
