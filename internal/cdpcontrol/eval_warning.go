package cdpcontrol

const warningElementID = "bankfill-warning"

// jsShowWarning renders a single fixed overlay at the top of the page. A
// second call replaces the text; a click removes it.
func jsShowWarning(message string) string {
	return wrapJSEval(`
var id = ` + jsString(warningElementID) + `;
var box = document.getElementById(id);
if (!box) {
  box = document.createElement("div");
  box.id = id;
  box.setAttribute("role", "alert");
  box.title = "Click to dismiss";
  box.style.cssText = [
    "position:fixed", "top:12px", "left:50%", "transform:translateX(-50%)",
    "z-index:2147483647", "max-width:90vw", "padding:10px 16px",
    "background:#b71c1c", "color:#fff", "font:600 14px/1.4 sans-serif",
    "border-radius:6px", "box-shadow:0 4px 12px rgba(0,0,0,.4)", "cursor:pointer"
  ].join(";");
  box.addEventListener("click", function() { box.remove(); });
  (document.body || document.documentElement).appendChild(box);
}
box.textContent = ` + jsString(message) + `;
return JSON.stringify({ok:true,data:{shown:true}});`)
}
