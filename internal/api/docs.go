package api

// docsHTML renders the OpenAPI document served at /openapi.json.
const docsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>bankfill API</title>
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js"></script>
  <link rel="stylesheet" href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" />
</head>
<body style="margin: 0; height: 100vh;">
  <elements-api apiDescriptionUrl="/openapi.json" router="hash" layout="sidebar" />
</body>
</html>`
